// pkg/core/overlay.go
package core

// AttachmentBehavior is a token behavior an attached overlay can opt out of
type AttachmentBehavior string

const (
	BehaviorRotation AttachmentBehavior = "ROTATION"
	BehaviorVisible  AttachmentBehavior = "VISIBLE"
	BehaviorCopy     AttachmentBehavior = "COPY"
	BehaviorScale    AttachmentBehavior = "SCALE"
)

// DetachedBehaviors is applied to every tracker overlay
var DetachedBehaviors = []AttachmentBehavior{
	BehaviorRotation,
	BehaviorVisible,
	BehaviorCopy,
	BehaviorScale,
}

// Overlay is a primitive added to the scene on behalf of a token.
// Exactly one of Curve, Shape, Text or Image is set, matching Type.
type Overlay struct {
	ID                        string               `json:"id"`
	Type                      ItemType             `json:"type"`
	Layer                     Layer                `json:"layer"`
	AttachedTo                string               `json:"attachedTo"`
	Position                  Vec2                 `json:"position"`
	Visible                   bool                 `json:"visible"`
	Locked                    bool                 `json:"locked"`
	DisableHit                bool                 `json:"disableHit"`
	DisableAttachmentBehavior []AttachmentBehavior `json:"disableAttachmentBehavior,omitempty"`
	ZIndex                    int                  `json:"zIndex,omitempty"`

	Curve *Curve `json:"curve,omitempty"`
	Shape *Shape `json:"shape,omitempty"`
	Text  *Text  `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
}

// Curve is a closed polyline, relative to the overlay position
type Curve struct {
	Points        []Vec2  `json:"points"`
	FillColor     string  `json:"fillColor"`
	FillOpacity   float64 `json:"fillOpacity"`
	StrokeColor   string  `json:"strokeColor"`
	StrokeOpacity float64 `json:"strokeOpacity"`
	StrokeWidth   float64 `json:"strokeWidth"`
	Tension       float64 `json:"tension"`
	Closed        bool    `json:"closed"`
}

// ShapeType is the geometric primitive of a Shape
type ShapeType string

const (
	ShapeCircle    ShapeType = "CIRCLE"
	ShapeRectangle ShapeType = "RECTANGLE"
)

// Shape is a simple filled geometric primitive
type Shape struct {
	ShapeType     ShapeType `json:"shapeType"`
	Width         float64   `json:"width"`
	Height        float64   `json:"height"`
	FillColor     string    `json:"fillColor"`
	FillOpacity   float64   `json:"fillOpacity"`
	StrokeColor   string    `json:"strokeColor"`
	StrokeOpacity float64   `json:"strokeOpacity"`
	StrokeWidth   float64   `json:"strokeWidth"`
}

// Text is a plain text label
type Text struct {
	PlainText         string  `json:"plainText"`
	Width             float64 `json:"width"`
	Height            float64 `json:"height"`
	FontSize          float64 `json:"fontSize"`
	FontFamily        string  `json:"fontFamily"`
	FontWeight        int     `json:"fontWeight"`
	TextAlign         string  `json:"textAlign"`
	TextAlignVertical string  `json:"textAlignVertical"`
	FillColor         string  `json:"fillColor"`
	FillOpacity       float64 `json:"fillOpacity"`
	StrokeColor       string  `json:"strokeColor"`
	StrokeOpacity     float64 `json:"strokeOpacity"`
	StrokeWidth       float64 `json:"strokeWidth"`
	LineHeight        float64 `json:"lineHeight"`
}

// Image is a raster overlay
type Image struct {
	Content ImageContent `json:"content"`
	Grid    ImageGrid    `json:"grid"`
	Scale   Vec2         `json:"scale"`
}
