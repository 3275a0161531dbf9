// Package streaming defines the envelopes exchanged with a remote scene host
// over WebSocket.
package streaming

import (
	"encoding/json"

	"github.com/owltrackers/extension/pkg/core"
)

// Client to host message types. Every one is acknowledged.
const (
	TypeHello               = "hello"
	TypeAddOverlays         = "add_overlays"
	TypeDeleteOverlays      = "delete_overlays"
	TypeSetSceneMetadata    = "set_scene_metadata"
	TypeUpdateTokenMetadata = "update_token_metadata"
)

// Host to client message types.
const (
	TypeAck           = "ack"
	TypeSceneSnapshot = "scene_snapshot"
	TypeSceneReady    = "scene_ready"
	TypeRole          = "role"
	TypeSceneMetadata = "scene_metadata"
	TypeItems         = "items"
)

// Envelope wraps all messages sent over the WebSocket. ID correlates a
// request with its acknowledgement.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the host's acknowledgement response. A non-empty Error means
// the host rejected the request.
type AckMessage struct {
	Type  string `json:"type"` // always "ack"
	For   string `json:"for"`  // the message type being acknowledged
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// HelloPayload identifies the extension to the host.
type HelloPayload struct {
	PluginID string `json:"pluginId"`
}

// SceneSnapshot is the full scene state the host pushes after hello.
type SceneSnapshot struct {
	Ready    bool          `json:"ready"`
	Role     core.Role     `json:"role"`
	GridDPI  float64       `json:"gridDpi"`
	Metadata core.Metadata `json:"metadata"`
	Tokens   []core.Token  `json:"tokens"`
}

// SceneReadyPayload reports the scene being opened or closed.
type SceneReadyPayload struct {
	Ready bool `json:"ready"`
}

// RolePayload reports a role change.
type RolePayload struct {
	Role core.Role `json:"role"`
}

// SceneMetadataPayload carries the full scene metadata bag.
type SceneMetadataPayload struct {
	Metadata core.Metadata `json:"metadata"`
}

// ItemsPayload carries the full ordered token list.
type ItemsPayload struct {
	Tokens []core.Token `json:"tokens"`
}

// AddOverlaysPayload adds or replaces overlays by id.
type AddOverlaysPayload struct {
	Overlays []core.Overlay `json:"overlays"`
}

// DeleteOverlaysPayload removes overlays by id.
type DeleteOverlaysPayload struct {
	IDs []string `json:"ids"`
}

// SetSceneMetadataPayload merges a partial bag into the scene metadata.
type SetSceneMetadataPayload struct {
	Metadata core.Metadata `json:"metadata"`
}

// UpdateTokenMetadataPayload merges a partial bag into one token's metadata.
type UpdateTokenMetadataPayload struct {
	TokenID  string        `json:"tokenId"`
	Metadata core.Metadata `json:"metadata"`
}
