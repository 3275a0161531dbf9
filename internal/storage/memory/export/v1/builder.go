package v1

import (
	"sort"
	"time"

	"github.com/owltrackers/extension/pkg/core"
)

// SceneData contains all the data needed to build an export
type SceneData struct {
	PluginID string
	Role     core.Role
	GridDPI  float64
	Metadata core.Metadata
	Tokens   []core.Token
	Overlays map[string]core.Overlay
}

// Build converts scene state into the v1 export format. Overlays are sorted
// by id so repeated exports of the same scene are identical apart from the
// timestamp.
func Build(data SceneData, now time.Time) Export {
	export := Export{
		Version:    Version,
		ExportedAt: now.UTC(),
		Role:       data.Role,
		GridDPI:    data.GridDPI,
		Metadata:   data.Metadata,
		Tokens:     make([]Token, 0, len(data.Tokens)),
		Overlays:   make([]core.Overlay, 0, len(data.Overlays)),
		Orphans:    make([]string, 0),
	}
	if export.Metadata == nil {
		export.Metadata = core.Metadata{}
	}

	for _, o := range data.Overlays {
		export.Overlays = append(export.Overlays, o)
	}
	sort.Slice(export.Overlays, func(i, j int) bool {
		return export.Overlays[i].ID < export.Overlays[j].ID
	})

	byToken := make(map[string][]string, len(data.Tokens))
	for _, o := range export.Overlays {
		byToken[o.AttachedTo] = append(byToken[o.AttachedTo], o.ID)
	}

	trackersKey := core.PluginKey(data.PluginID, core.TrackerMetadataID)
	hiddenKey := core.PluginKey(data.PluginID, core.HiddenMetadataID)

	known := make(map[string]bool, len(data.Tokens))
	for _, t := range data.Tokens {
		known[t.ID] = true
		hidden, _ := t.Metadata[hiddenKey].(bool)
		ids := byToken[t.ID]
		if ids == nil {
			ids = []string{}
		}
		export.Tokens = append(export.Tokens, Token{
			Token:        t,
			TrackerCount: len(core.DecodeTrackers(t.Metadata[trackersKey])),
			Hidden:       hidden,
			OverlayIDs:   ids,
		})
	}

	for _, o := range export.Overlays {
		if !known[o.AttachedTo] {
			export.Orphans = append(export.Orphans, o.ID)
		}
	}

	return export
}
