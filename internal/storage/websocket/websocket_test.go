package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/pkg/core"
	"github.com/owltrackers/extension/pkg/streaming"
)

// Compile-time interface checks.
var (
	_ storage.Backend       = (*Backend)(nil)
	_ storage.OverlayReader = (*Backend)(nil)
	_ storage.Exportable    = (*Backend)(nil)
)

// hostConn serializes writes from the handler and from test pushes.
type hostConn struct {
	mu sync.Mutex
	c  *ws.Conn
}

func (h *hostConn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.c.WriteMessage(ws.TextMessage, data)
}

// fakeHost is an httptest scene host. It acks every request, answers hello
// with a snapshot and records what it receives.
type fakeHost struct {
	srv *httptest.Server

	mu       sync.Mutex
	messages []streaming.Envelope
	conns    []*hostConn
	secrets  []string
	snapshot streaming.SceneSnapshot
	reject   map[string]string
	silent   bool
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		snapshot: streaming.SceneSnapshot{
			Ready:    true,
			Role:     core.RoleGM,
			GridDPI:  150,
			Metadata: core.Metadata{"p/verticalOffset": 4.0},
			Tokens:   []core.Token{hostToken("a"), hostToken("b")},
		},
		reject: map[string]string{},
	}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		hc := &hostConn{c: c}
		h.mu.Lock()
		h.conns = append(h.conns, hc)
		h.secrets = append(h.secrets, r.URL.Query().Get("secret"))
		h.mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}

			h.mu.Lock()
			h.messages = append(h.messages, env)
			silent := h.silent && env.Type != streaming.TypeHello
			reason := h.reject[env.Type]
			snap := h.snapshot
			h.mu.Unlock()

			if silent {
				continue
			}
			ack := streaming.AckMessage{Type: streaming.TypeAck, For: env.Type, ID: env.ID, Error: reason}
			if err := hc.write(ack); err != nil {
				return
			}
			if env.Type == streaming.TypeHello {
				raw, _ := json.Marshal(snap)
				if err := hc.write(streaming.Envelope{Type: streaming.TypeSceneSnapshot, Payload: raw}); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHost) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *fakeHost) push(t *testing.T, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h.mu.Lock()
	hc := h.conns[len(h.conns)-1]
	h.mu.Unlock()
	require.NoError(t, hc.write(streaming.Envelope{Type: msgType, Payload: raw}))
}

func (h *fakeHost) dropConnection() {
	h.mu.Lock()
	hc := h.conns[len(h.conns)-1]
	h.mu.Unlock()
	hc.c.Close()
}

func (h *fakeHost) received(msgType string) []streaming.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []streaming.Envelope
	for _, m := range h.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (h *fakeHost) connCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func hostToken(id string) core.Token {
	return core.Token{
		ID:       id,
		Type:     core.ItemImage,
		Layer:    core.LayerCharacter,
		Scale:    core.Vec2{X: 1, Y: 1},
		Visible:  true,
		Grid:     core.ImageGrid{DPI: 300, Offset: core.Vec2{X: 150, Y: 150}},
		Metadata: core.Metadata{},
	}
}

func newTestBackend(t *testing.T, h *fakeHost) *Backend {
	t.Helper()
	b, err := New(Config{
		URL:              h.url(),
		Secret:           "s3cret",
		PluginID:         "com.owl-trackers",
		AckTimeout:       2 * time.Second,
		ReconnectBackoff: 10 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInitMirrorsSnapshot(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)

	var ready []bool
	var mu sync.Mutex
	b.OnSceneReadyChange(func(r bool) {
		mu.Lock()
		ready = append(ready, r)
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	ok, err := b.IsSceneReady(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	tokens, err := b.Tokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "a", tokens[0].ID)

	meta, err := b.SceneMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, meta["p/verticalOffset"])

	mu.Lock()
	assert.Equal(t, []bool{true}, ready)
	mu.Unlock()

	hello := h.received(streaming.TypeHello)
	require.Len(t, hello, 1)
	assert.JSONEq(t, `{"pluginId":"com.owl-trackers"}`, string(hello[0].Payload))
	assert.Equal(t, []string{"s3cret"}, h.secrets)
}

func TestOverlayRequests(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	overlays := []core.Overlay{
		{ID: "a-0-bar-bg", Type: core.ItemCurve, AttachedTo: "a"},
		{ID: "a-0-bar-fill", Type: core.ItemCurve, AttachedTo: "a"},
	}
	require.NoError(t, b.AddOverlays(ctx, overlays))
	require.NoError(t, b.DeleteOverlays(ctx, []string{"a-0-bar-fill"}))

	adds := h.received(streaming.TypeAddOverlays)
	require.Len(t, adds, 1)
	assert.NotEmpty(t, adds[0].ID)
	var addPayload streaming.AddOverlaysPayload
	require.NoError(t, json.Unmarshal(adds[0].Payload, &addPayload))
	assert.Len(t, addPayload.Overlays, 2)

	dels := h.received(streaming.TypeDeleteOverlays)
	require.Len(t, dels, 1)
	assert.JSONEq(t, `{"ids":["a-0-bar-fill"]}`, string(dels[0].Payload))

	held, err := b.Overlays(ctx)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "a-0-bar-bg", held[0].ID)

	// empty writes never reach the host
	require.NoError(t, b.AddOverlays(ctx, nil))
	require.NoError(t, b.DeleteOverlays(ctx, nil))
	assert.Len(t, h.received(streaming.TypeAddOverlays), 1)
}

func TestMetadataWrites(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	metaEvents := make(chan core.Metadata, 4)
	b.OnSceneMetadataChange(func(m core.Metadata) { metaEvents <- m })

	require.NoError(t, b.SetSceneMetadata(ctx, core.Metadata{"p/segmentsEnabled": true}))
	got := <-metaEvents
	assert.Equal(t, true, got["p/segmentsEnabled"])
	assert.Equal(t, 4.0, got["p/verticalOffset"])

	require.NoError(t, b.UpdateTokenMetadata(ctx, "b", core.Metadata{"p/hidden": true}))
	tokens, err := b.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, tokens[1].Metadata["p/hidden"])

	updates := h.received(streaming.TypeUpdateTokenMetadata)
	require.Len(t, updates, 1)
	assert.JSONEq(t, `{"tokenId":"b","metadata":{"p/hidden":true}}`, string(updates[0].Payload))

	err = b.UpdateTokenMetadata(ctx, "missing", core.Metadata{"p/hidden": true})
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
	assert.Len(t, h.received(streaming.TypeUpdateTokenMetadata), 1)
}

func TestHostRejection(t *testing.T) {
	h := newFakeHost(t)
	h.reject[streaming.TypeAddOverlays] = "no permission"
	b := newTestBackend(t, h)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	err := b.AddOverlays(ctx, []core.Overlay{{ID: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no permission")

	held, _ := b.Overlays(ctx)
	assert.Empty(t, held)
}

func TestAckTimeout(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	h.mu.Lock()
	h.silent = true
	h.mu.Unlock()
	b.cfg.AckTimeout = 50 * time.Millisecond

	err := b.DeleteOverlays(ctx, []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestContextCancelled(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)
	require.NoError(t, b.Init(context.Background()))

	h.mu.Lock()
	h.silent = true
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.AddOverlays(ctx, []core.Overlay{{ID: "x"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostPushes(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	roles := make(chan core.Role, 1)
	items := make(chan []core.Token, 1)
	ready := make(chan bool, 1)
	b.OnRoleChange(func(r core.Role) { roles <- r })
	b.OnItemsChange(func(t []core.Token) { items <- t })
	b.OnSceneReadyChange(func(r bool) { ready <- r })

	h.push(t, streaming.TypeRole, streaming.RolePayload{Role: core.RolePlayer})
	assert.Equal(t, core.RolePlayer, <-roles)

	h.push(t, streaming.TypeItems, streaming.ItemsPayload{Tokens: []core.Token{hostToken("c")}})
	got := <-items
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	h.push(t, streaming.TypeSceneReady, streaming.SceneReadyPayload{Ready: false})
	assert.False(t, <-ready)

	_, err := b.Tokens(ctx)
	assert.ErrorIs(t, err, storage.ErrSceneNotReady)
	assert.ErrorIs(t, b.AddOverlays(ctx, []core.Overlay{{ID: "x"}}), storage.ErrSceneNotReady)
}

func TestListenerMayRequestFromEvent(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	done := make(chan error, 1)
	b.OnItemsChange(func([]core.Token) {
		done <- b.AddOverlays(ctx, []core.Overlay{{ID: "from-listener"}})
	})

	h.push(t, streaming.TypeItems, streaming.ItemsPayload{Tokens: []core.Token{hostToken("a")}})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("listener request blocked")
	}
}

func TestReconnectReplaysHello(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	items := make(chan []core.Token, 4)
	b.OnItemsChange(func(t []core.Token) { items <- t })

	h.mu.Lock()
	h.snapshot.Tokens = []core.Token{hostToken("z")}
	h.mu.Unlock()
	h.dropConnection()

	require.Eventually(t, func() bool {
		return h.connCount() == 2 && len(h.received(streaming.TypeHello)) == 2
	}, 3*time.Second, 10*time.Millisecond)

	// the post-reconnect snapshot is re-emitted without a ready transition
	select {
	case got := <-items:
		require.Len(t, got, 1)
		assert.Equal(t, "z", got[0].ID)
	case <-time.After(3 * time.Second):
		t.Fatal("no items after reconnect")
	}

	require.NoError(t, b.AddOverlays(ctx, []core.Overlay{{ID: "after"}}))
}

func TestInitDialFailure(t *testing.T) {
	b, err := New(Config{URL: "ws://127.0.0.1:1/none"}, nil)
	require.NoError(t, err)
	assert.Error(t, b.Init(context.Background()))
	assert.NoError(t, b.Close())
}

func TestCloseTwice(t *testing.T) {
	h := newFakeHost(t)
	b := newTestBackend(t, h)
	require.NoError(t, b.Init(context.Background()))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestHTTPToWS(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost:5000", "ws://localhost:5000"},
		{"https://host.example/", "wss://host.example"},
		{"ws://already", "ws://already"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPToWS(tt.in))
		})
	}
}
