package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/owltrackers/extension/internal/detector"
	"github.com/owltrackers/extension/internal/model"
	"github.com/owltrackers/extension/internal/overlay"
	"github.com/owltrackers/extension/internal/queue"
	"github.com/owltrackers/extension/internal/visibility"
	"github.com/owltrackers/extension/pkg/core"
)

const (
	passFull        = "full"
	passIncremental = "incremental"
)

// loadSettings replaces the cached settings with the scene's current ones
func (m *Manager) loadSettings(ctx context.Context) error {
	meta, err := m.backend.SceneMetadata(ctx)
	if err != nil {
		return fmt.Errorf("loading scene settings: %w", err)
	}

	m.deps.Settings.Reset()
	m.deps.Settings.SetSettings(m.deps.Parser.ParseSettings(meta))
	if segs, ok := m.deps.Parser.ParseSegmentSettings(meta); ok {
		m.deps.Settings.SetSegments(segs)
	}
	return nil
}

// refreshAll lays out every token of the scene again
func (m *Manager) refreshAll(ctx context.Context) error {
	start := time.Now()

	role, err := m.backend.Role(ctx)
	if err != nil {
		return fmt.Errorf("reading role: %w", err)
	}
	items, err := m.backend.Tokens(ctx)
	if err != nil {
		return fmt.Errorf("reading tokens: %w", err)
	}

	m.mu.Lock()
	m.role = role
	m.mu.Unlock()

	tokens := detector.FilterTokens(items)
	m.deps.Snapshots.Replace(tokens)

	if err := m.compile(ctx, tokens, role); err != nil {
		m.adds.Clear()
		m.deletes.Clear()
		return err
	}

	added, deleted, err := m.flush(ctx)
	m.record(ctx, passFull, len(tokens), len(tokens), added, deleted, start)
	return err
}

// compile buffers the overlay plan of every token
func (m *Manager) compile(ctx context.Context, tokens []core.Token, role core.Role) error {
	if len(tokens) == 0 {
		return nil
	}

	dpi, err := m.backend.GridDPI(ctx)
	if err != nil {
		return fmt.Errorf("reading grid dpi: %w", err)
	}
	settings, segments := m.deps.Settings.Get()

	for _, token := range tokens {
		trackers := m.deps.Parser.TokenTrackers(token)
		hidden := m.deps.Parser.TokenHidden(token)

		plan := overlay.Compile(overlay.Input{
			Token:    token,
			Trackers: trackers,
			Hidden:   hidden,
			Mode:     visibility.Decide(role, len(trackers), hidden, settings.SegmentsEnabled),
			Settings: settings,
			Segments: segments,
			SceneDPI: dpi,
		})
		m.deletes.Push(plan.Delete...)
		m.adds.Push(plan.Add...)
	}
	return nil
}

// flush sends the buffered deletes, then the buffered adds, in chunks of
// the batch size. Both buffers are empty afterwards whatever the outcome.
func (m *Manager) flush(ctx context.Context) (added, deleted int, err error) {
	deletes := m.deletes.Drain()
	adds := m.adds.Drain()

	for _, chunk := range queue.Chunk(deletes, m.deps.BatchSize) {
		if err := m.backend.DeleteOverlays(ctx, chunk); err != nil {
			return 0, deleted, fmt.Errorf("deleting overlays: %w", err)
		}
		deleted += len(chunk)
	}
	for _, chunk := range queue.Chunk(adds, m.deps.BatchSize) {
		if err := m.backend.AddOverlays(ctx, chunk); err != nil {
			return added, deleted, fmt.Errorf("adding overlays: %w", err)
		}
		added += len(chunk)
	}
	return added, deleted, nil
}

func (m *Manager) record(ctx context.Context, kind string, seen, changed, added, deleted int, start time.Time) {
	pass := model.RefreshPass{
		Time:            start,
		Kind:            kind,
		TokensSeen:      seen,
		TokensChanged:   changed,
		OverlaysAdded:   added,
		OverlaysDeleted: deleted,
		DurationMs:      float64(time.Since(start).Microseconds()) / 1000,
	}

	m.mu.Lock()
	m.lastPass = pass
	m.mu.Unlock()
	m.passes.Inc()

	m.metrics.record(ctx, pass)
	if m.deps.Recorder != nil {
		m.deps.Recorder.RecordPass(ctx, pass)
	}

	m.logger.Debug("Refresh pass complete",
		"kind", kind,
		"tokens", seen,
		"changed", changed,
		"added", added,
		"deleted", deleted,
		"durationMs", pass.DurationMs)
}
