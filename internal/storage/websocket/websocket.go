// Package websocket implements storage.Backend against a remote scene host.
// Host state is mirrored into a memory scene from pushed envelopes; writes are
// sent as acknowledged requests and applied to the mirror once the host
// accepts them.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/owltrackers/extension/internal/config"
	"github.com/owltrackers/extension/internal/dispatcher"
	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/internal/storage/memory"
	"github.com/owltrackers/extension/pkg/core"
	"github.com/owltrackers/extension/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL      string
	Secret   string
	PluginID string
	// Mirror configures the local scene copy; an OutputDir exports it on close
	Mirror config.MemoryConfig
	// AckTimeout bounds every request and the wait for the first snapshot
	AckTimeout time.Duration
	// ReconnectBackoff is the first reconnect delay
	ReconnectBackoff time.Duration
}

// Backend mirrors a remote scene host over WebSocket.
type Backend struct {
	storage.Hub

	cfg    Config
	conn   *connection
	mirror *memory.Backend
	logger *slog.Logger

	// host pushes are applied in arrival order by a single buffered handler
	inbox *dispatcher.Dispatcher

	snapshotOnce sync.Once
	snapshot     chan struct{}
}

const (
	// hostCommand is the inbox command every host push is dispatched under
	hostCommand = "host"
	// inboxSize bounds host pushes waiting to be applied; the read loop
	// blocks once it is full
	inboxSize = 1024
)

// New creates a new WebSocket storage backend. The mirror starts closed
// until the host sends its first snapshot.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = ackTimeout
	}

	b := &Backend{
		cfg:      cfg,
		mirror:   memory.New(cfg.Mirror),
		logger:   logger,
		snapshot: make(chan struct{}),
	}
	b.mirror.SetSceneReady(false)

	inbox, err := dispatcher.New(logger)
	if err != nil {
		return nil, fmt.Errorf("creating inbox: %w", err)
	}
	// listeners run on the inbox worker, so a listener may issue requests
	// without blocking the read loop
	inbox.Register(hostCommand, func(e dispatcher.Event) (any, error) {
		env, ok := e.Payload.(streaming.Envelope)
		if !ok {
			return nil, fmt.Errorf("unexpected inbox payload %T", e.Payload)
		}
		return nil, b.apply(env)
	}, dispatcher.Buffered(inboxSize), dispatcher.Blocking())
	b.inbox = inbox

	b.mirror.OnSceneReadyChange(b.EmitSceneReady)
	b.mirror.OnRoleChange(b.EmitRole)
	b.mirror.OnSceneMetadataChange(b.EmitSceneMetadata)
	b.mirror.OnItemsChange(b.EmitItems)

	b.conn = newConnection(logger, b.enqueue)
	if cfg.ReconnectBackoff > 0 {
		b.conn.backoff = cfg.ReconnectBackoff
	}
	return b, nil
}

// HTTPToWS converts an HTTP(S) URL to a WebSocket URL.
func HTTPToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}

// Init connects, says hello and waits briefly for the first scene snapshot.
func (b *Backend) Init(ctx context.Context) error {
	hello, err := envelope(streaming.TypeHello, streaming.HelloPayload{PluginID: b.cfg.PluginID})
	if err != nil {
		return err
	}
	helloData, err := json.Marshal(streaming.Envelope{Type: hello.Type, Payload: hello.Payload})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	b.conn.hello = helloData

	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	if err := b.conn.sendAndWait(ctx, hello, b.cfg.AckTimeout); err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	timer := time.NewTimer(b.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case <-b.snapshot:
	case <-timer.C:
		b.logger.Warn("No scene snapshot from host yet")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Close disconnects from the host and closes the mirror.
func (b *Backend) Close() error {
	err := b.conn.close()
	// apply whatever the host pushed before the close
	b.inbox.Close()
	if merr := b.mirror.Close(); merr != nil && err == nil {
		err = merr
	}
	return err
}

// GetExportedFilePath returns the mirror's last export path.
func (b *Backend) GetExportedFilePath() string {
	return b.mirror.GetExportedFilePath()
}

func (b *Backend) enqueue(env streaming.Envelope) {
	if _, err := b.inbox.Dispatch(dispatcher.Event{Command: hostCommand, Payload: env}); err != nil {
		b.logger.Debug("Dropped host message", "type", env.Type, "error", err)
	}
}

func (b *Backend) apply(env streaming.Envelope) error {
	switch env.Type {
	case streaming.TypeSceneSnapshot:
		var p streaming.SceneSnapshot
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		b.applySnapshot(p)

	case streaming.TypeSceneReady:
		var p streaming.SceneReadyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		b.mirror.SetSceneReady(p.Ready)

	case streaming.TypeRole:
		var p streaming.RolePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		b.mirror.SetRole(p.Role)

	case streaming.TypeSceneMetadata:
		var p streaming.SceneMetadataPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		b.mirror.ReplaceSceneMetadata(p.Metadata)

	case streaming.TypeItems:
		var p streaming.ItemsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		b.mirror.SetTokens(p.Tokens)

	default:
		b.logger.Debug("Ignoring host message", "type", env.Type)
	}
	return nil
}

func (b *Backend) applySnapshot(p streaming.SceneSnapshot) {
	ctx := context.Background()
	prevRole, _ := b.mirror.Role(ctx)

	b.mirror.ReplaceScene(p.Tokens, p.Metadata, p.Role, p.GridDPI)
	role, _ := b.mirror.Role(ctx)
	if role != prevRole {
		b.EmitRole(role)
	}

	wasReady, _ := b.mirror.IsSceneReady(ctx)
	b.mirror.SetSceneReady(p.Ready)
	if wasReady && p.Ready {
		// a snapshot after reconnect replaces state without a ready transition
		meta, _ := b.mirror.SceneMetadata(ctx)
		b.EmitSceneMetadata(meta)
		tokens, _ := b.mirror.Tokens(ctx)
		b.EmitItems(tokens)
	}

	b.snapshotOnce.Do(func() { close(b.snapshot) })
}

func envelope(msgType string, payload any) (streaming.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return streaming.Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return streaming.Envelope{Type: msgType, ID: uuid.NewString(), Payload: raw}, nil
}

// request sends one acknowledged envelope.
func (b *Backend) request(ctx context.Context, msgType string, payload any) error {
	env, err := envelope(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(ctx, env, b.cfg.AckTimeout)
}

func (b *Backend) requireReady(ctx context.Context) error {
	ready, _ := b.mirror.IsSceneReady(ctx)
	if !ready {
		return storage.ErrSceneNotReady
	}
	return nil
}

// IsSceneReady reports the mirrored ready flag.
func (b *Backend) IsSceneReady(ctx context.Context) (bool, error) {
	return b.mirror.IsSceneReady(ctx)
}

// Tokens returns the mirrored tokens.
func (b *Backend) Tokens(ctx context.Context) ([]core.Token, error) {
	return b.mirror.Tokens(ctx)
}

// Role returns the mirrored role.
func (b *Backend) Role(ctx context.Context) (core.Role, error) {
	return b.mirror.Role(ctx)
}

// GridDPI returns the mirrored grid dpi.
func (b *Backend) GridDPI(ctx context.Context) (float64, error) {
	return b.mirror.GridDPI(ctx)
}

// SceneMetadata returns the mirrored scene metadata.
func (b *Backend) SceneMetadata(ctx context.Context) (core.Metadata, error) {
	return b.mirror.SceneMetadata(ctx)
}

// Overlays returns the overlays the host has accepted from this client.
func (b *Backend) Overlays(ctx context.Context) ([]core.Overlay, error) {
	return b.mirror.Overlays(ctx)
}

// SetSceneMetadata asks the host to merge partial, then applies it locally.
func (b *Backend) SetSceneMetadata(ctx context.Context, partial core.Metadata) error {
	if err := b.requireReady(ctx); err != nil {
		return err
	}
	if err := b.request(ctx, streaming.TypeSetSceneMetadata, streaming.SetSceneMetadataPayload{Metadata: partial}); err != nil {
		return err
	}
	return b.mirror.SetSceneMetadata(ctx, partial)
}

// UpdateTokenMetadata asks the host to merge partial into one token, then
// applies it locally.
func (b *Backend) UpdateTokenMetadata(ctx context.Context, tokenID string, partial core.Metadata) error {
	tokens, err := b.mirror.Tokens(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, t := range tokens {
		if t.ID == tokenID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", storage.ErrTokenNotFound, tokenID)
	}

	payload := streaming.UpdateTokenMetadataPayload{TokenID: tokenID, Metadata: partial}
	if err := b.request(ctx, streaming.TypeUpdateTokenMetadata, payload); err != nil {
		return err
	}
	return b.mirror.UpdateTokenMetadata(ctx, tokenID, partial)
}

// AddOverlays sends overlays to the host.
func (b *Backend) AddOverlays(ctx context.Context, overlays []core.Overlay) error {
	if err := b.requireReady(ctx); err != nil {
		return err
	}
	if len(overlays) == 0 {
		return nil
	}
	if err := b.request(ctx, streaming.TypeAddOverlays, streaming.AddOverlaysPayload{Overlays: overlays}); err != nil {
		return err
	}
	return b.mirror.AddOverlays(ctx, overlays)
}

// DeleteOverlays asks the host to remove overlays by id.
func (b *Backend) DeleteOverlays(ctx context.Context, ids []string) error {
	if err := b.requireReady(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := b.request(ctx, streaming.TypeDeleteOverlays, streaming.DeleteOverlaysPayload{IDs: ids}); err != nil {
		return err
	}
	return b.mirror.DeleteOverlays(ctx, ids)
}
