// Package storage defines the scene host the tracker engine reads tokens
// from and writes overlays to.
package storage

import (
	"context"
	"errors"

	"github.com/owltrackers/extension/pkg/core"
)

var (
	// ErrSceneNotReady is returned by scene reads and writes while no scene is open
	ErrSceneNotReady = errors.New("scene not ready")
	// ErrTokenNotFound is returned when a token id is not in the scene
	ErrTokenNotFound = errors.New("token not found")
)

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

// Backend is the interface every scene host implementation must satisfy
type Backend interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error

	// Scene state
	IsSceneReady(ctx context.Context) (bool, error)
	Tokens(ctx context.Context) ([]core.Token, error)
	Role(ctx context.Context) (core.Role, error)
	GridDPI(ctx context.Context) (float64, error)
	SceneMetadata(ctx context.Context) (core.Metadata, error)

	// Writes. Overlay adds are upserts by id; deletes ignore unknown ids.
	SetSceneMetadata(ctx context.Context, partial core.Metadata) error
	UpdateTokenMetadata(ctx context.Context, tokenID string, partial core.Metadata) error
	AddOverlays(ctx context.Context, overlays []core.Overlay) error
	DeleteOverlays(ctx context.Context, ids []string) error

	// Subscriptions
	OnSceneReadyChange(fn func(ready bool)) Unsubscribe
	OnRoleChange(fn func(role core.Role)) Unsubscribe
	OnSceneMetadataChange(fn func(meta core.Metadata)) Unsubscribe
	OnItemsChange(fn func(tokens []core.Token)) Unsubscribe
}

// OverlayReader is implemented by backends that can list the overlays they hold.
type OverlayReader interface {
	Overlays(ctx context.Context) ([]core.Overlay, error)
}

// Exportable is an optional interface for backends that write a scene dump
// to disk on close.
type Exportable interface {
	GetExportedFilePath() string
}
