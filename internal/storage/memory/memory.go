// Package memory implements storage.Backend as an in-process scene. It is
// the default host for the CLI, the mirror behind the websocket backend and
// the test double for the sync worker.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/owltrackers/extension/internal/config"
	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/pkg/core"
)

// DefaultGridDPI is used when the config leaves the grid dpi unset
const DefaultGridDPI = 150

// Stats counts backend write calls
type Stats struct {
	AddCalls        int
	DeleteCalls     int
	OverlaysAdded   int
	OverlaysDeleted int
}

// Backend stores a scene in memory and exports it to JSON on close
type Backend struct {
	storage.Hub

	cfg config.MemoryConfig

	ready    bool
	role     core.Role
	gridDPI  float64
	metadata core.Metadata
	tokens   []core.Token
	overlays map[string]core.Overlay
	stats    Stats

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend. The scene starts ready.
func New(cfg config.MemoryConfig) *Backend {
	role := core.Role(cfg.Role)
	if role != core.RolePlayer {
		role = core.RoleGM
	}
	dpi := cfg.GridDPI
	if dpi <= 0 {
		dpi = DefaultGridDPI
	}
	return &Backend{
		cfg:      cfg,
		ready:    true,
		role:     role,
		gridDPI:  dpi,
		metadata: core.Metadata{},
		overlays: make(map[string]core.Overlay),
	}
}

// Init initializes the backend
func (b *Backend) Init(ctx context.Context) error {
	return nil
}

// Close exports the scene when an output directory is configured
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exportJSON()
}

// IsSceneReady reports whether a scene is open
func (b *Backend) IsSceneReady(ctx context.Context) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready, nil
}

// SetSceneReady opens or closes the scene and notifies listeners on change
func (b *Backend) SetSceneReady(ready bool) {
	b.mu.Lock()
	changed := b.ready != ready
	b.ready = ready
	b.mu.Unlock()

	if changed {
		b.EmitSceneReady(ready)
	}
}

// Tokens returns a copy of the scene tokens in scene order
func (b *Backend) Tokens(ctx context.Context) ([]core.Token, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready {
		return nil, storage.ErrSceneNotReady
	}
	return cloneTokens(b.tokens), nil
}

// Role returns the viewer role
func (b *Backend) Role(ctx context.Context) (core.Role, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.role, nil
}

// SetRole changes the viewer role and notifies listeners on change
func (b *Backend) SetRole(role core.Role) {
	b.mu.Lock()
	changed := b.role != role
	b.role = role
	b.mu.Unlock()

	if changed {
		b.EmitRole(role)
	}
}

// GridDPI returns the scene grid dpi
func (b *Backend) GridDPI(ctx context.Context) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gridDPI, nil
}

// SceneMetadata returns a copy of the scene metadata
func (b *Backend) SceneMetadata(ctx context.Context) (core.Metadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready {
		return nil, storage.ErrSceneNotReady
	}
	return b.metadata.Clone(), nil
}

// SetSceneMetadata merges partial into the scene metadata
func (b *Backend) SetSceneMetadata(ctx context.Context, partial core.Metadata) error {
	b.mu.Lock()
	if !b.ready {
		b.mu.Unlock()
		return storage.ErrSceneNotReady
	}
	b.metadata = b.metadata.Merge(partial)
	snapshot := b.metadata.Clone()
	b.mu.Unlock()

	b.EmitSceneMetadata(snapshot)
	return nil
}

// UpdateTokenMetadata merges partial into one token's metadata
func (b *Backend) UpdateTokenMetadata(ctx context.Context, tokenID string, partial core.Metadata) error {
	b.mu.Lock()
	if !b.ready {
		b.mu.Unlock()
		return storage.ErrSceneNotReady
	}
	i := b.indexOf(tokenID)
	if i < 0 {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", storage.ErrTokenNotFound, tokenID)
	}
	b.tokens[i].Metadata = b.tokens[i].Metadata.Merge(partial)
	snapshot := cloneTokens(b.tokens)
	b.mu.Unlock()

	b.EmitItems(snapshot)
	return nil
}

// AddOverlays upserts overlays by id
func (b *Backend) AddOverlays(ctx context.Context, overlays []core.Overlay) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return storage.ErrSceneNotReady
	}
	for _, o := range overlays {
		b.overlays[o.ID] = o
	}
	b.stats.AddCalls++
	b.stats.OverlaysAdded += len(overlays)
	return nil
}

// DeleteOverlays removes overlays by id; unknown ids are ignored
func (b *Backend) DeleteOverlays(ctx context.Context, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return storage.ErrSceneNotReady
	}
	for _, id := range ids {
		if _, ok := b.overlays[id]; ok {
			delete(b.overlays, id)
			b.stats.OverlaysDeleted++
		}
	}
	b.stats.DeleteCalls++
	return nil
}

// Overlays returns the scene overlays sorted by id
func (b *Backend) Overlays(ctx context.Context) ([]core.Overlay, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedOverlays(b.overlays), nil
}

// Overlay looks up one overlay by id
func (b *Backend) Overlay(id string) (core.Overlay, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.overlays[id]
	return o, ok
}

// Stats returns the write call counters
func (b *Backend) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// PutToken adds a token at the end of the scene, or replaces the token with
// the same id in place, and notifies item listeners.
func (b *Backend) PutToken(t core.Token) {
	b.mu.Lock()
	t.Metadata = t.Metadata.Clone()
	if i := b.indexOf(t.ID); i >= 0 {
		b.tokens[i] = t
	} else {
		b.tokens = append(b.tokens, t)
	}
	snapshot := cloneTokens(b.tokens)
	b.mu.Unlock()

	b.EmitItems(snapshot)
}

// RemoveToken deletes a token and every overlay attached to it
func (b *Backend) RemoveToken(id string) {
	b.mu.Lock()
	i := b.indexOf(id)
	if i < 0 {
		b.mu.Unlock()
		return
	}
	b.tokens = append(b.tokens[:i:i], b.tokens[i+1:]...)
	for oid, o := range b.overlays {
		if o.AttachedTo == id {
			delete(b.overlays, oid)
		}
	}
	snapshot := cloneTokens(b.tokens)
	b.mu.Unlock()

	b.EmitItems(snapshot)
}

// SetTokens replaces the scene tokens and notifies item listeners
func (b *Backend) SetTokens(tokens []core.Token) {
	b.mu.Lock()
	b.tokens = cloneTokens(tokens)
	snapshot := cloneTokens(b.tokens)
	b.mu.Unlock()

	b.EmitItems(snapshot)
}

// ReplaceSceneMetadata replaces the whole scene metadata bag and notifies listeners
func (b *Backend) ReplaceSceneMetadata(metadata core.Metadata) {
	b.mu.Lock()
	if metadata == nil {
		metadata = core.Metadata{}
	}
	b.metadata = metadata.Clone()
	snapshot := b.metadata.Clone()
	b.mu.Unlock()

	b.EmitSceneMetadata(snapshot)
}

// ReplaceScene swaps the whole scene state without emitting events. The
// websocket backend uses it to mirror a host snapshot.
func (b *Backend) ReplaceScene(tokens []core.Token, metadata core.Metadata, role core.Role, gridDPI float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = cloneTokens(tokens)
	if metadata == nil {
		metadata = core.Metadata{}
	}
	b.metadata = metadata.Clone()
	if role != "" {
		b.role = role
	}
	if gridDPI > 0 {
		b.gridDPI = gridDPI
	}
}

func (b *Backend) indexOf(id string) int {
	for i := range b.tokens {
		if b.tokens[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTokens(tokens []core.Token) []core.Token {
	out := make([]core.Token, len(tokens))
	for i, t := range tokens {
		t.Metadata = t.Metadata.Clone()
		out[i] = t
	}
	return out
}

func sortedOverlays(m map[string]core.Overlay) []core.Overlay {
	out := make([]core.Overlay, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
