// Package worker keeps tracker overlays in sync with the scene. Scene
// notifications are routed through the dispatcher so refresh passes never
// overlap.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/owltrackers/extension/internal/cache"
	"github.com/owltrackers/extension/internal/dispatcher"
	"github.com/owltrackers/extension/internal/logging"
	"github.com/owltrackers/extension/internal/model"
	"github.com/owltrackers/extension/internal/parser"
	"github.com/owltrackers/extension/internal/queue"
	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/pkg/core"
)

// DefaultBatchSize is the largest overlay slice sent in one backend call
const DefaultBatchSize = 100

// ErrNotRegistered is returned by Start before RegisterHandlers was called
var ErrNotRegistered = errors.New("worker handlers not registered")

// PassRecorder receives the statistics of every refresh pass
type PassRecorder interface {
	RecordPass(ctx context.Context, pass model.RefreshPass)
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
	Parser     *parser.Parser
	Snapshots  *cache.SnapshotCache
	Settings   *cache.SettingsCache
	BatchSize  int
	// Recorder is optional
	Recorder PassRecorder
}

// Manager owns the refresh state of one scene
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	logger  *slog.Logger
	metrics instruments

	adds    *queue.Queue[core.Overlay]
	deletes *queue.Queue[string]

	dispatcher *dispatcher.Dispatcher

	mu         sync.Mutex
	ctx        context.Context
	readySub   storage.Unsubscribe
	sceneSubs  []storage.Unsubscribe
	subscribed bool
	role       core.Role
	lastPass   model.RefreshPass
	passes     cache.SafeCounter
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) (*Manager, error) {
	if deps.Snapshots == nil {
		deps.Snapshots = cache.NewSnapshotCache()
	}
	if deps.Settings == nil {
		deps.Settings = cache.NewSettingsCache()
	}
	if deps.BatchSize < 1 {
		deps.BatchSize = DefaultBatchSize
	}

	logger := slog.Default()
	if deps.LogManager != nil {
		logger = deps.LogManager.Logger()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(logger, "")
	}

	metrics, err := newInstruments()
	if err != nil {
		return nil, err
	}

	return &Manager{
		deps:    deps,
		backend: backend,
		logger:  logger,
		metrics: metrics,
		adds:    queue.New[core.Overlay](),
		deletes: queue.New[string](),
		ctx:     context.Background(),
	}, nil
}

// Start subscribes to scene readiness. A scene that is already open is
// refreshed before Start returns.
func (m *Manager) Start(ctx context.Context) error {
	if m.dispatcher == nil {
		return ErrNotRegistered
	}

	m.mu.Lock()
	m.ctx = ctx
	if m.readySub == nil {
		m.readySub = m.backend.OnSceneReadyChange(func(ready bool) {
			m.notify(CmdSceneReady, ready)
		})
	}
	m.mu.Unlock()

	ready, err := m.backend.IsSceneReady(ctx)
	if err != nil {
		return err
	}
	if !ready {
		m.logger.Info("Scene not ready, waiting")
		return nil
	}

	_, err = m.dispatcher.Dispatch(dispatcher.Event{Command: CmdSceneReady, Payload: true})
	return err
}

// Close drops every subscription
func (m *Manager) Close() {
	m.unsubscribeScene()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readySub != nil {
		m.readySub()
		m.readySub = nil
	}
}

// Role returns the role the overlays were last laid out for
func (m *Manager) Role() core.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// Subscribed reports whether the manager follows scene changes
func (m *Manager) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed
}

// LastPass returns the statistics of the most recent refresh pass
func (m *Manager) LastPass() model.RefreshPass {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPass
}

// TrackedTokens returns how many tokens the last pass saw
func (m *Manager) TrackedTokens() int {
	return m.deps.Snapshots.Len()
}

// PassCount returns the number of refresh passes run so far
func (m *Manager) PassCount() int {
	return m.passes.Value()
}

func (m *Manager) runContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// notify forwards a backend notification to the dispatcher. Failures are
// logged by the dispatcher.
func (m *Manager) notify(command string, payload any) {
	if m.dispatcher == nil {
		return
	}
	_, _ = m.dispatcher.Dispatch(dispatcher.Event{Command: command, Payload: payload})
}

func (m *Manager) subscribeScene() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed {
		return
	}
	m.sceneSubs = []storage.Unsubscribe{
		m.backend.OnRoleChange(func(role core.Role) { m.notify(CmdRole, role) }),
		m.backend.OnSceneMetadataChange(func(meta core.Metadata) { m.notify(CmdMetadata, meta) }),
		m.backend.OnItemsChange(func(tokens []core.Token) { m.notify(CmdItems, tokens) }),
	}
	m.subscribed = true
}

func (m *Manager) unsubscribeScene() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, unsub := range m.sceneSubs {
		unsub()
	}
	m.sceneSubs = nil
	m.subscribed = false
}
