// Package v1 contains the v1 scene dump format written by the memory backend.
package v1

import (
	"time"

	"github.com/owltrackers/extension/pkg/core"
)

// Version is written into every export
const Version = 1

// Export is the root JSON structure for v1 format
type Export struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Role       core.Role      `json:"role"`
	GridDPI    float64        `json:"gridDpi"`
	Metadata   core.Metadata  `json:"metadata"`
	Tokens     []Token        `json:"tokens"`
	Overlays   []core.Overlay `json:"overlays"`
	// Orphans lists overlay ids whose token is no longer in the scene
	Orphans []string `json:"orphans"`
}

// Token is a scene token with a summary of what is drawn for it
type Token struct {
	core.Token
	TrackerCount int      `json:"trackerCount"`
	Hidden       bool     `json:"hidden"`
	OverlayIDs   []string `json:"overlayIds"`
}
