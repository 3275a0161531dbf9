// pkg/core/scene.go
package core

// Vec2 is a position or size in scene pixels
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the component-wise sum
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns the component-wise difference
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Layer is the scene layer an item lives on
type Layer string

const (
	LayerCharacter  Layer = "CHARACTER"
	LayerMount      Layer = "MOUNT"
	LayerProp       Layer = "PROP"
	LayerMap        Layer = "MAP"
	LayerAttachment Layer = "ATTACHMENT"
	LayerText       Layer = "TEXT"
	LayerNote       Layer = "NOTE"
)

// ItemType is the host item type
type ItemType string

const (
	ItemImage ItemType = "IMAGE"
	ItemShape ItemType = "SHAPE"
	ItemCurve ItemType = "CURVE"
	ItemText  ItemType = "TEXT"
)

// Metadata is a host metadata bag: decoded JSON values keyed by namespaced key
type Metadata map[string]any

// Clone returns a shallow copy
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge applies a partial update; nil values remove keys
func (m Metadata) Merge(partial Metadata) Metadata {
	out := m.Clone()
	for k, v := range partial {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// ImageContent describes the raster behind an image item
type ImageContent struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Mime   string  `json:"mime,omitempty"`
	URL    string  `json:"url,omitempty"`
}

// ImageGrid anchors an image to the scene grid
type ImageGrid struct {
	DPI    float64 `json:"dpi"`
	Offset Vec2    `json:"offset"`
}

// Token is a snapshot of a scene item
type Token struct {
	ID       string       `json:"id"`
	Type     ItemType     `json:"type"`
	Layer    Layer        `json:"layer"`
	Name     string       `json:"name,omitempty"`
	Position Vec2         `json:"position"`
	Scale    Vec2         `json:"scale"`
	Rotation float64      `json:"rotation"`
	Visible  bool         `json:"visible"`
	Image    ImageContent `json:"image"`
	Grid     ImageGrid    `json:"grid"`
	Metadata Metadata     `json:"metadata,omitempty"`
}

// Role is the current user's role in the room
type Role string

const (
	RoleGM     Role = "GM"
	RolePlayer Role = "PLAYER"
)

// PluginKey namespaces a metadata key under the plugin id
func PluginKey(pluginID, key string) string {
	return pluginID + "/" + key
}
