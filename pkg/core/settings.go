// pkg/core/settings.go
package core

const (
	DefaultBarHeight      = 20.0
	ReducedBarHeight      = 16.0
	MinimalBarHeight      = 12.0
	DefaultBubbleDiameter = 30.0
)

// Scene metadata keys, namespaced with PluginKey
const (
	VerticalOffsetKey     = "verticalOffset"
	TrackersAboveTokenKey = "trackersAboveToken"
	BarHeightReducedKey   = "barHeightIsReduced"
	BaseBarHeightKey      = "baseBarHeight"
	BubbleDiameterKey     = "baseBubbleDiameter"
	SegmentsEnabledKey    = "segmentsEnabled"
	SegmentSettingsKey    = "segmentSettings"
)

// Settings holds the scene-wide layout options
type Settings struct {
	VerticalOffset     float64
	TrackersAboveToken bool
	BarHeightIsReduced bool
	BaseBarHeight      float64
	BaseBubbleDiameter float64
	SegmentsEnabled    bool
}

// DefaultSettings returns the settings of a scene with no stored metadata
func DefaultSettings() Settings {
	return Settings{
		BaseBarHeight:      DefaultBarHeight,
		BaseBubbleDiameter: DefaultBubbleDiameter,
	}
}

// BarHeight is the full bar height before the tracker size scale is applied
func (s Settings) BarHeight() float64 {
	if s.BarHeightIsReduced {
		return ReducedBarHeight
	}
	if s.BaseBarHeight <= 0 {
		return DefaultBarHeight
	}
	return s.BaseBarHeight
}

// BubbleDiameter is the bubble diameter before the tracker size scale is applied
func (s Settings) BubbleDiameter() float64 {
	if s.BaseBubbleDiameter <= 0 {
		return DefaultBubbleDiameter
	}
	return s.BaseBubbleDiameter
}

// SegmentSettings maps a tracker name to its LIMITED-mode segment count
type SegmentSettings map[string]int

// Equal reports whether both maps hold the same entries
func (s SegmentSettings) Equal(o SegmentSettings) bool {
	if len(s) != len(o) {
		return false
	}
	for k, v := range s {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Segments returns the segment count for the named tracker
func (s SegmentSettings) Segments(name string) (int, bool) {
	n, ok := s[name]
	return n, ok
}
