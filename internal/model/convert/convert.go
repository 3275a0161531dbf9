// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/owltrackers/extension/internal/geo"
	"github.com/owltrackers/extension/internal/model"
	"github.com/owltrackers/extension/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// vecToPoint converts a scene position to a geom.Point
func vecToPoint(v core.Vec2) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: v.X, Y: v.Y}, Type: geom.DimXY})
}

// pointToVec converts a geom.Point back to a scene position; empty points map to the origin
func pointToVec(p geom.Point) core.Vec2 {
	xy, ok := p.XY()
	if !ok {
		return core.Vec2{}
	}
	return core.Vec2{X: xy.X, Y: xy.Y}
}

// MetadataToJSON encodes a metadata bag for a JSON column
func MetadataToJSON(m core.Metadata) (datatypes.JSON, error) {
	if len(m) == 0 {
		return datatypes.JSON("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return datatypes.JSON(data), nil
}

// JSONToMetadata decodes a JSON column into a metadata bag
func JSONToMetadata(data datatypes.JSON) (core.Metadata, error) {
	m := core.Metadata{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// CoreToToken converts a core.Token to a GORM model.Token at the given scene position.
func CoreToToken(t core.Token, order int) (model.Token, error) {
	meta, err := MetadataToJSON(t.Metadata)
	if err != nil {
		return model.Token{}, err
	}
	return model.Token{
		TokenID:     t.ID,
		SortOrder:   order,
		Type:        string(t.Type),
		Layer:       string(t.Layer),
		Name:        t.Name,
		Position:    vecToPoint(t.Position),
		ScaleX:      t.Scale.X,
		ScaleY:      t.Scale.Y,
		Rotation:    t.Rotation,
		Visible:     t.Visible,
		ImageWidth:  t.Image.Width,
		ImageHeight: t.Image.Height,
		ImageMime:   t.Image.Mime,
		ImageURL:    t.Image.URL,
		GridDPI:     t.Grid.DPI,
		GridOffsetX: t.Grid.Offset.X,
		GridOffsetY: t.Grid.Offset.Y,
		Metadata:    meta,
	}, nil
}

// TokenToCore converts a GORM model.Token to a core.Token.
func TokenToCore(t model.Token) (core.Token, error) {
	meta, err := JSONToMetadata(t.Metadata)
	if err != nil {
		return core.Token{}, fmt.Errorf("token %s: %w", t.TokenID, err)
	}
	return core.Token{
		ID:       t.TokenID,
		Type:     core.ItemType(t.Type),
		Layer:    core.Layer(t.Layer),
		Name:     t.Name,
		Position: pointToVec(t.Position),
		Scale:    core.Vec2{X: t.ScaleX, Y: t.ScaleY},
		Rotation: t.Rotation,
		Visible:  t.Visible,
		Image: core.ImageContent{
			Width:  t.ImageWidth,
			Height: t.ImageHeight,
			Mime:   t.ImageMime,
			URL:    t.ImageURL,
		},
		Grid: core.ImageGrid{
			DPI:    t.GridDPI,
			Offset: core.Vec2{X: t.GridOffsetX, Y: t.GridOffsetY},
		},
		Metadata: meta,
	}, nil
}

// CoreToOverlay converts a core.Overlay to a GORM model.Overlay. Curve
// outlines with fewer than three distinct points are stored empty.
func CoreToOverlay(o core.Overlay) (model.Overlay, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return model.Overlay{}, fmt.Errorf("encode overlay %s: %w", o.ID, err)
	}

	row := model.Overlay{
		OverlayID: o.ID,
		TokenID:   o.AttachedTo,
		Type:      string(o.Type),
		Layer:     string(o.Layer),
		Position:  vecToPoint(o.Position),
		Body:      datatypes.JSON(body),
	}

	if o.Curve != nil && o.Curve.Closed {
		if poly, err := geo.OutlinePolygon(o.Position, o.Curve.Points); err == nil {
			row.Outline = poly
		}
	}
	return row, nil
}

// OverlayToCore converts a GORM model.Overlay to a core.Overlay.
func OverlayToCore(o model.Overlay) (core.Overlay, error) {
	var out core.Overlay
	if err := json.Unmarshal(o.Body, &out); err != nil {
		return core.Overlay{}, fmt.Errorf("decode overlay %s: %w", o.OverlayID, err)
	}
	return out, nil
}
