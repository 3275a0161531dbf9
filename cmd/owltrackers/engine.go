package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/owltrackers/extension/internal/config"
	"github.com/owltrackers/extension/internal/dispatcher"
	"github.com/owltrackers/extension/internal/handlers"
	"github.com/owltrackers/extension/internal/influx"
	"github.com/owltrackers/extension/internal/logging"
	"github.com/owltrackers/extension/internal/monitor"
	"github.com/owltrackers/extension/internal/parser"
	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/internal/worker"
)

// engine wires one scene backend to the sync worker and the UI commands
type engine struct {
	app      *app
	pluginID string
	backend  storage.Backend

	dispatcher *dispatcher.Dispatcher
	worker     *worker.Manager
	commands   *handlers.Service
	monitor    *monitor.Service
	influx     *influx.Manager
}

// startEngine initializes the backend and starts following the scene
func (a *app) startEngine(ctx context.Context, backend storage.Backend) (*engine, error) {
	if err := backend.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	refresh := config.GetRefreshConfig()
	e := &engine{app: a, pluginID: refresh.PluginID, backend: backend}

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.zlog))
	if err != nil {
		e.close(ctx)
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	e.dispatcher = d

	e.influx = a.connectInflux(ctx)

	var db *gorm.DB
	if p, ok := backend.(dbProvider); ok {
		db = p.DB()
	}
	e.monitor = monitor.NewService(monitor.Dependencies{
		DB:         db,
		Influx:     e.influx,
		LogManager: a.logManager,
		PluginID:   e.pluginID,
		StatusPath: filepath.Join(viper.GetString("logsDir"), StatusFile),
	})

	p := parser.NewParser(a.logger, e.pluginID)
	w, err := worker.NewManager(worker.Dependencies{
		LogManager: a.logManager,
		Parser:     p,
		BatchSize:  refresh.BatchSize,
		Recorder:   e.monitor,
	}, backend)
	if err != nil {
		e.close(ctx)
		return nil, fmt.Errorf("failed to create sync worker: %w", err)
	}
	e.worker = w
	e.monitor.SetWorker(w)
	a.worker.Store(w)

	a.logger.Debug("Registering handlers with dispatcher")
	w.RegisterHandlers(d)
	e.commands = handlers.NewService(handlers.Dependencies{
		Backend:    backend,
		Parser:     p,
		LogManager: a.logManager,
	})
	e.commands.RegisterHandlers(d)
	a.logger.Info("Handlers registered with dispatcher")

	e.monitor.Start()
	if err := w.Start(ctx); err != nil {
		e.close(ctx)
		return nil, fmt.Errorf("failed to start sync worker: %w", err)
	}
	return e, nil
}

// connectInflux returns nil when InfluxDB is disabled or neither the server
// nor the backup file can be used
func (a *app) connectInflux(ctx context.Context) *influx.Manager {
	backupPath := filepath.Join(
		viper.GetString("logsDir"),
		fmt.Sprintf("%s_influx_%s.lp.gz", ServiceName, a.sessionStart.Format(sessionFormat)),
	)
	m := influx.NewManager(a.zlog, backupPath)
	if err := m.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			a.logger.Error("Failed to set up InfluxDB", "error", err)
		}
		return nil
	}
	return m
}

// command sends one UI command through the dispatcher
func (e *engine) command(name string, args ...string) (any, error) {
	return e.dispatcher.Dispatch(dispatcher.Event{
		Command:   name,
		Args:      args,
		Timestamp: time.Now(),
	})
}

// commandLine is one UI command read from the command stream
type commandLine struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// commandReply answers one commandLine
type commandReply struct {
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (e *engine) handleLine(line string) commandReply {
	var cmd commandLine
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		return commandReply{Error: fmt.Sprintf("error parsing command: %v", err)}
	}
	res, err := e.command(cmd.Command, cmd.Args...)
	reply := commandReply{Command: cmd.Command, Result: res}
	if err != nil {
		reply.Error = err.Error()
	}
	return reply
}

// maxCommandLine bounds one JSON command line; segment lists can be long
const maxCommandLine = 4 * 1024 * 1024

// serve answers JSON commands read line by line from in until in is
// exhausted or ctx is done
func (e *engine) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxCommandLine)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := enc.Encode(e.handleLine(line)); err != nil {
				return fmt.Errorf("error writing reply: %w", err)
			}
		}
	}
}

// close stops following the scene and releases the backend. A backend that
// wrote a scene export uploads it to the host.
func (e *engine) close(ctx context.Context) error {
	meta := exportMetadata(ctx, e.backend, e.pluginID)

	if e.worker != nil {
		e.worker.Close()
		e.app.worker.Store(nil)
	}
	if e.monitor != nil {
		e.monitor.Stop()
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}

	var errs []error
	if err := e.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close storage backend: %w", err))
	} else {
		e.app.uploadExport(ctx, e.backend, meta)
	}
	if e.influx != nil {
		if err := e.influx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
