// Package detector decides which tokens need their overlays recomputed
// between two scene snapshots.
package detector

import (
	"bytes"
	"encoding/json"

	"github.com/owltrackers/extension/internal/overlay"
	"github.com/owltrackers/extension/pkg/core"
)

// Result of comparing two snapshots
type Result struct {
	// Changed tokens in current-snapshot order
	Changed []core.Token
	// Delete holds overlay ids that must be removed before the changed
	// tokens are laid out again
	Delete []string
}

// Detector compares snapshots using the plugin's metadata keys
type Detector struct {
	trackersKey string
	hiddenKey   string
}

// New returns a Detector for the plugin namespace
func New(pluginID string) Detector {
	return Detector{
		trackersKey: core.PluginKey(pluginID, core.TrackerMetadataID),
		hiddenKey:   core.PluginKey(pluginID, core.HiddenMetadataID),
	}
}

// Detect walks both ordered snapshots. When ids disagree the previous entry
// is assumed deleted and skipped, and the current token is compared again
// with the next previous entry. Tokens past the end of the previous snapshot
// are new.
func (d Detector) Detect(previous, current []core.Token) Result {
	var res Result

	skip := 0
	for i := 0; i < len(current); i++ {
		tok := current[i]
		if i+skip >= len(previous) {
			res.Changed = append(res.Changed, tok)
			continue
		}

		last := previous[i+skip]
		if last.ID != tok.ID {
			skip++
			i--
			continue
		}

		switch {
		case last.Scale != tok.Scale:
			// bar labels keep a stale selection outline after a resize
			res.Delete = append(res.Delete, overlay.BarTextIDs(tok.ID)...)
			res.Changed = append(res.Changed, tok)
		case d.differs(last, tok):
			res.Changed = append(res.Changed, tok)
		}
	}

	return res
}

func (d Detector) differs(a, b core.Token) bool {
	return a.Grid.Offset != b.Grid.Offset ||
		a.Grid.DPI != b.Grid.DPI ||
		a.Visible != b.Visible ||
		!jsonEqual(a.Metadata[d.trackersKey], b.Metadata[d.trackersKey]) ||
		!jsonEqual(a.Metadata[d.hiddenKey], b.Metadata[d.hiddenKey])
}

// jsonEqual compares two decoded metadata values by their JSON encoding.
// Map keys are sorted by encoding/json so equal values encode identically.
func jsonEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// FilterTokens keeps the image items trackers can be attached to
func FilterTokens(items []core.Token) []core.Token {
	out := make([]core.Token, 0, len(items))
	for _, it := range items {
		if it.Type != core.ItemImage {
			continue
		}
		if it.Layer != core.LayerCharacter && it.Layer != core.LayerMount {
			continue
		}
		out = append(out, it)
	}
	return out
}
