// Package monitor records refresh pass statistics and keeps a status file
// describing the sync worker up to date.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/owltrackers/extension/internal/influx"
	"github.com/owltrackers/extension/internal/logging"
	"github.com/owltrackers/extension/internal/model"
	"github.com/owltrackers/extension/pkg/core"
)

// DefaultInterval between status file writes
const DefaultInterval = time.Second

// WorkerStatus is implemented by the sync worker
type WorkerStatus interface {
	Role() core.Role
	Subscribed() bool
	PassCount() int
	TrackedTokens() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	// DB receives one refresh_passes row per pass when set
	DB *gorm.DB
	// Influx receives one point per pass when set
	Influx     *influx.Manager
	LogManager *logging.SlogManager
	Worker     WorkerStatus
	PluginID   string
	StatusPath string
	Interval   time.Duration
}

// Status is the content of the status file
type Status struct {
	Time      time.Time          `json:"time"`
	Role      core.Role          `json:"role"`
	Following bool               `json:"following"`
	Passes    int                `json:"passes"`
	Tokens    int                `json:"tokens"`
	LastPass  *model.RefreshPass `json:"lastPass,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu        sync.RWMutex
	worker    WorkerStatus
	lastPass  *model.RefreshPass
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps, worker: deps.Worker}
}

// SetWorker replaces the worker whose state the status file reports. The
// worker records passes into the service, so it is usually built after it.
func (s *Service) SetWorker(w WorkerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker = w
}

func (s *Service) writeLog(functionName, data, level string) {
	if s.deps.LogManager != nil {
		s.deps.LogManager.WriteLog(functionName, data, level)
	}
}

// RecordPass stores the pass and forwards it to the database and InfluxDB
func (s *Service) RecordPass(ctx context.Context, pass model.RefreshPass) {
	s.mu.Lock()
	s.lastPass = &pass
	s.mu.Unlock()

	if s.deps.DB != nil {
		row := pass
		if err := s.deps.DB.WithContext(ctx).Create(&row).Error; err != nil {
			s.writeLog("RecordPass", fmt.Sprintf("Error writing refresh pass: %v", err), "ERROR")
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(influx.PassPoint(s.deps.PluginID, pass)); err != nil {
			s.writeLog("RecordPass", fmt.Sprintf("Error writing refresh pass point: %v", err), "ERROR")
		}
	}
}

// GetStatus returns the current worker status
func (s *Service) GetStatus() Status {
	status := Status{Time: time.Now()}

	s.mu.RLock()
	w := s.worker
	if s.lastPass != nil {
		last := *s.lastPass
		status.LastPass = &last
	}
	s.mu.RUnlock()

	if w != nil {
		status.Role = w.Role()
		status.Following = w.Subscribed()
		status.Passes = w.PassCount()
		status.Tokens = w.TrackedTokens()
	}
	return status
}

// WriteStatus replaces the status file content
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding status: %w", err)
	}
	tmp := s.deps.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing status file: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusPath)
}

// IsRunning returns whether the status loop is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start starts the status loop. Without a status path only passes are recorded.
func (s *Service) Start() {
	if s.deps.StatusPath == "" {
		return
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			if err := s.WriteStatus(); err != nil {
				s.writeLog("startStatusMonitor", err.Error(), "ERROR")
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the status loop and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}
