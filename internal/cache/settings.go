package cache

import (
	"sync"

	"github.com/owltrackers/extension/pkg/core"
)

// SettingsCache holds the last scene settings the layout was computed with
type SettingsCache struct {
	mu       sync.RWMutex
	settings core.Settings
	segments core.SegmentSettings
}

// NewSettingsCache starts from the default settings and no segments
func NewSettingsCache() *SettingsCache {
	return &SettingsCache{
		settings: core.DefaultSettings(),
		segments: core.SegmentSettings{},
	}
}

// Get returns the cached settings and a copy of the segment settings
func (c *SettingsCache) Get() (core.Settings, core.SegmentSettings) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings, cloneSegments(c.segments)
}

// SetSettings stores s and reports whether any layout-relevant value changed
func (c *SettingsCache) SetSettings(s core.Settings) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.settings != s
	c.settings = s
	return changed
}

// SetSegments stores segs and reports whether they differ from the cached ones
func (c *SettingsCache) SetSegments(segs core.SegmentSettings) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.segments.Equal(segs) {
		return false
	}
	c.segments = cloneSegments(segs)
	return true
}

// Reset restores the defaults
func (c *SettingsCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = core.DefaultSettings()
	c.segments = core.SegmentSettings{}
}

func cloneSegments(s core.SegmentSettings) core.SegmentSettings {
	out := make(core.SegmentSettings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
