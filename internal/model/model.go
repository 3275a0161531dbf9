package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Scene{},
	&Token{},
	&Overlay{},
	&RefreshPass{},
}

// SceneID is the primary key of the single scene row
const SceneID = 1

// Scene holds the room-level state of the scene host
type Scene struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Ready     bool           `json:"ready"`
	Role      string         `json:"role" gorm:"size:16"`
	GridDPI   float64        `json:"gridDpi"`
	Metadata  datatypes.JSON `json:"metadata" gorm:"default:'{}'"`
}

func (*Scene) TableName() string {
	return "scenes"
}

// Token is a scene item trackers can be attached to. SortOrder keeps the
// host's item order, which change detection depends on.
type Token struct {
	TokenID     string         `json:"id" gorm:"primarykey;size:64"`
	SortOrder   int            `json:"sortOrder" gorm:"index:idx_token_sort_order"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Type        string         `json:"type" gorm:"size:16"`
	Layer       string         `json:"layer" gorm:"size:16;index:idx_token_layer"`
	Name        string         `json:"name" gorm:"size:255"`
	Position    geom.Point     `json:"position"`
	ScaleX      float64        `json:"scaleX"`
	ScaleY      float64        `json:"scaleY"`
	Rotation    float64        `json:"rotation"`
	Visible     bool           `json:"visible"`
	ImageWidth  float64        `json:"imageWidth"`
	ImageHeight float64        `json:"imageHeight"`
	ImageMime   string         `json:"imageMime" gorm:"size:64"`
	ImageURL    string         `json:"imageUrl"`
	GridDPI     float64        `json:"gridDpi"`
	GridOffsetX float64        `json:"gridOffsetX"`
	GridOffsetY float64        `json:"gridOffsetY"`
	Metadata    datatypes.JSON `json:"metadata" gorm:"default:'{}'"`
}

func (*Token) TableName() string {
	return "tokens"
}

// Overlay is one attachment drawn by the tracker engine. Body holds the full
// overlay as JSON; Outline holds the absolute outline of curve overlays.
type Overlay struct {
	OverlayID string         `json:"id" gorm:"primarykey;size:96"`
	TokenID   string         `json:"tokenId" gorm:"size:64;index:idx_overlay_token_id"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Type      string         `json:"type" gorm:"size:16"`
	Layer     string         `json:"layer" gorm:"size:16"`
	Position  geom.Point     `json:"position"`
	Outline   geom.Polygon   `json:"outline"`
	Body      datatypes.JSON `json:"body"`
}

func (*Overlay) TableName() string {
	return "overlays"
}

// RefreshPass is the model for sync worker performance metrics
type RefreshPass struct {
	ID              uint      `json:"id" gorm:"primarykey"`
	Time            time.Time `json:"time" gorm:"index:idx_refresh_pass_time"`
	Kind            string    `json:"kind" gorm:"size:16"`
	TokensSeen      int       `json:"tokensSeen"`
	TokensChanged   int       `json:"tokensChanged"`
	OverlaysAdded   int       `json:"overlaysAdded"`
	OverlaysDeleted int       `json:"overlaysDeleted"`
	DurationMs      float64   `json:"durationMs"`
}

func (*RefreshPass) TableName() string {
	return "refresh_passes"
}
