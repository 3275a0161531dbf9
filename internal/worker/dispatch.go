package worker

import (
	"fmt"
	"time"

	"github.com/owltrackers/extension/internal/detector"
	"github.com/owltrackers/extension/internal/dispatcher"
	"github.com/owltrackers/extension/pkg/core"
)

// Scene notifications routed through the dispatcher
const (
	CmdSceneReady = ":SCENE:READY:"
	CmdRole       = ":SCENE:ROLE:"
	CmdMetadata   = ":SCENE:METADATA:"
	CmdItems      = ":SCENE:ITEMS:"
)

// RegisterHandlers registers the scene handlers with the dispatcher. All of
// them are serial: a refresh pass runs to completion before the next one.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.dispatcher = d

	d.Register(CmdSceneReady, m.handleSceneReady, dispatcher.Serial(), dispatcher.Logged())
	d.Register(CmdRole, m.handleRole, dispatcher.Serial(), dispatcher.Logged())
	d.Register(CmdMetadata, m.handleMetadata, dispatcher.Serial(), dispatcher.Logged())
	d.Register(CmdItems, m.handleItems, dispatcher.Serial(), dispatcher.Logged())
}

func payload[T any](e dispatcher.Event) (T, error) {
	v, ok := e.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected payload %T", e.Command, e.Payload)
	}
	return v, nil
}

func (m *Manager) handleSceneReady(e dispatcher.Event) (any, error) {
	ready, err := payload[bool](e)
	if err != nil {
		return nil, err
	}

	if !ready {
		m.unsubscribeScene()
		m.deps.Snapshots.Reset()
		m.logger.Info("Scene closed, stopped following changes")
		return nil, nil
	}

	if m.Subscribed() {
		return nil, nil
	}

	ctx := m.runContext()
	if err := m.loadSettings(ctx); err != nil {
		return nil, err
	}
	if err := m.refreshAll(ctx); err != nil {
		return nil, err
	}
	m.subscribeScene()
	m.logger.Info("Scene ready, following changes")
	return nil, nil
}

func (m *Manager) handleRole(e dispatcher.Event) (any, error) {
	role, err := payload[core.Role](e)
	if err != nil {
		return nil, err
	}
	if role == m.Role() {
		return nil, nil
	}
	return nil, m.refreshAll(m.runContext())
}

func (m *Manager) handleMetadata(e dispatcher.Event) (any, error) {
	meta, err := payload[core.Metadata](e)
	if err != nil {
		return nil, err
	}

	changed := m.deps.Settings.SetSettings(m.deps.Parser.ParseSettings(meta))
	if segs, ok := m.deps.Parser.ParseSegmentSettings(meta); ok {
		changed = m.deps.Settings.SetSegments(segs) || changed
	}
	if !changed {
		return nil, nil
	}
	return nil, m.refreshAll(m.runContext())
}

func (m *Manager) handleItems(e dispatcher.Event) (any, error) {
	items, err := payload[[]core.Token](e)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx := m.runContext()

	tokens := detector.FilterTokens(items)
	previous := m.deps.Snapshots.Swap(tokens)
	res := detector.New(m.deps.Parser.PluginID()).Detect(previous, tokens)
	if len(res.Changed) == 0 && len(res.Delete) == 0 {
		return nil, nil
	}

	m.deletes.Push(res.Delete...)
	if err := m.compile(ctx, res.Changed, m.Role()); err != nil {
		m.adds.Clear()
		m.deletes.Clear()
		return nil, err
	}

	added, deleted, err := m.flush(ctx)
	m.record(ctx, passIncremental, len(tokens), len(res.Changed), added, deleted, start)
	return nil, err
}
