// Package visibility decides how much of a token's trackers a viewer sees.
package visibility

import "github.com/owltrackers/extension/pkg/core"

// Mode is the display mode for one token
type Mode int

const (
	// None clears every tracker overlay of the token
	None Mode = iota
	// Limited shows only segment-configured bars at minimal height
	Limited
	// Full shows bars, bubbles and the hidden indicator
	Full
)

func (m Mode) String() string {
	switch m {
	case None:
		return "NONE"
	case Limited:
		return "LIMITED"
	case Full:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// Decide picks the display mode from the current inputs only.
func Decide(role core.Role, trackerCount int, hidden, segmentsEnabled bool) Mode {
	switch {
	case role == core.RoleGM && trackerCount == 0 && !hidden:
		return None
	case role == core.RolePlayer && trackerCount == 0:
		return None
	case role == core.RolePlayer && hidden && !segmentsEnabled:
		return None
	case role == core.RolePlayer && hidden:
		return Limited
	default:
		return Full
	}
}
