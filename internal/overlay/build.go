package overlay

import (
	"fmt"
	"unicode/utf8"

	"github.com/owltrackers/extension/internal/geo"
	"github.com/owltrackers/extension/internal/tracker"
	"github.com/owltrackers/extension/internal/util"
	"github.com/owltrackers/extension/pkg/core"
)

const (
	fontFamily         = "Roboto, sans-serif"
	textVerticalOffset = -1.2

	bubbleOpacity      = 0.7
	bubbleStrokeAlpha  = 0.5
	bubbleFontInset    = 8.0
	bubbleReducedInset = 15.0
	bubbleTextPadding  = 2.0
	checkboxTextShift  = 3.0

	barPadding         = 2.0
	barFillOpacity     = 0.8
	barBackground      = "black"
	barBackgroundAlpha = 0.7
	barTextShift       = -5.3

	// HideIconURL is the visibility-off icon shown on hidden tokens
	HideIconURL   = "https://raw.githubusercontent.com/SeamusFinlayson/owl-trackers/main/src/assets/visibility_off.png"
	hideIconDPI   = 150.0
	hideIconSize  = 24.0
	hideIconColor = "black"

	checkedGlyph   = "✓"
	uncheckedGlyph = "◯"
	ellipsis       = "…"
)

// attach fills the fields every tracker overlay shares
func attach(o core.Overlay, token core.Token, id string) core.Overlay {
	o.ID = id
	o.AttachedTo = token.ID
	o.Visible = token.Visible
	o.Locked = true
	o.DisableHit = true
	o.DisableAttachmentBehavior = core.DetachedBehaviors
	return o
}

// barLayout is the geometry of one bar
type barLayout struct {
	position core.Vec2
	width    float64
	height   float64
}

func layoutBar(bounds geo.Size, origin core.Vec2, height float64) barLayout {
	return barLayout{
		position: core.Vec2{
			X: origin.X - bounds.Width/2 + barPadding,
			Y: origin.Y - height,
		},
		width:  bounds.Width - barPadding*2,
		height: height,
	}
}

// buildBar returns the background and fill of a value-max tracker whose
// bottom edge sits at origin.Y, plus its value label when withText is set.
func buildBar(token core.Token, bounds geo.Size, t core.Tracker, origin core.Vec2, slot int, baseHeight float64, segments int, withText bool) []core.Overlay {
	bar, ok := t.Payload.(core.Bar)
	if !ok {
		panic(fmt.Sprintf("overlay: bar layout requested for %s tracker %s", t.Variant(), t.ID))
	}

	scale := t.SizeScale()
	l := layoutBar(bounds, origin, baseHeight*scale)
	radius := l.height / 2

	background := attach(core.Overlay{
		Type:     core.ItemCurve,
		Layer:    core.LayerAttachment,
		Position: l.position,
		Curve: &core.Curve{
			Points:      geo.RoundedRect(l.width, l.height, radius, 1),
			FillColor:   barBackground,
			FillOpacity: barBackgroundAlpha,
			StrokeWidth: 0,
			Tension:     0,
			Closed:      true,
		},
	}, token, BarBackgroundID(token.ID, slot))

	fill := attach(core.Overlay{
		Type:     core.ItemCurve,
		Layer:    core.LayerAttachment,
		Position: l.position,
		Curve: &core.Curve{
			Points:        geo.RoundedRect(l.width, l.height, radius, geo.FillPortion(bar.Value, bar.Max, segments)),
			FillColor:     tracker.Color(t.Color),
			FillOpacity:   barFillOpacity,
			StrokeWidth:   0,
			StrokeOpacity: 0,
			Tension:       0,
			Closed:        true,
		},
	}, token, BarFillID(token.ID, slot))

	if !withText {
		return []core.Overlay{background, fill}
	}

	text := attach(core.Overlay{
		Type:  core.ItemText,
		Layer: core.LayerText,
		Position: core.Vec2{
			X: l.position.X,
			Y: l.position.Y + textVerticalOffset + barTextShift*scale,
		},
		Text: &core.Text{
			PlainText:         util.FormatFraction(bar.Value, bar.Max),
			Width:             l.width,
			Height:            (baseHeight + 8) * scale,
			FontSize:          (baseHeight + 2) * scale,
			FontFamily:        fontFamily,
			FontWeight:        400,
			TextAlign:         "CENTER",
			TextAlignVertical: "MIDDLE",
			FillColor:         "white",
			FillOpacity:       1,
		},
	}, token, BarTextID(token.ID, slot))

	return []core.Overlay{background, fill, text}
}

// BubbleText returns the label drawn inside a bubble tracker
func BubbleText(t core.Tracker) string {
	var raw string
	switch p := t.Payload.(type) {
	case core.Checkbox:
		if p.Checked {
			return checkedGlyph
		}
		return uncheckedGlyph
	case core.Bubble:
		raw = util.FormatNumber(p.Value)
	case core.Counter:
		raw = util.FormatNumber(p.Value)
	default:
		panic(fmt.Sprintf("overlay: bubble text requested for %s tracker %s", t.Variant(), t.ID))
	}
	if utf8.RuneCountInString(raw) > 3 {
		return ellipsis
	}
	return raw
}

// buildBubble returns the circle and label of a value, counter or checkbox
// tracker centered on position.
func buildBubble(token core.Token, t core.Tracker, position core.Vec2, slot int, baseDiameter float64) []core.Overlay {
	if !t.IsBubble() {
		panic(fmt.Sprintf("overlay: bubble layout requested for %s tracker %s", t.Variant(), t.ID))
	}

	scale := t.SizeScale()
	diameter := baseDiameter * scale
	color := tracker.Color(t.Color)

	shape := attach(core.Overlay{
		Type:     core.ItemShape,
		Layer:    core.LayerAttachment,
		Position: position,
		Shape: &core.Shape{
			ShapeType:     core.ShapeCircle,
			Width:         diameter,
			Height:        diameter,
			FillColor:     color,
			FillOpacity:   bubbleOpacity,
			StrokeColor:   color,
			StrokeOpacity: bubbleStrokeAlpha,
			StrokeWidth:   0,
		},
	}, token, BubbleBackgroundID(token.ID, slot))

	label := BubbleText(t)
	fontSize := (baseDiameter - bubbleFontInset) * scale
	if utf8.RuneCountInString(label) == 3 {
		fontSize = (baseDiameter - bubbleReducedInset) * scale
	}

	textAnchor := position
	if _, ok := t.Payload.(core.Checkbox); ok {
		textAnchor.Y += checkboxTextShift * scale
	}

	text := attach(core.Overlay{
		Type:  core.ItemText,
		Layer: core.LayerText,
		Position: core.Vec2{
			X: textAnchor.X - diameter/2,
			Y: textAnchor.Y - diameter/2 + textVerticalOffset,
		},
		Text: &core.Text{
			PlainText:         label,
			Width:             diameter,
			Height:            (baseDiameter + bubbleTextPadding) * scale,
			FontSize:          fontSize,
			FontFamily:        fontFamily,
			FontWeight:        400,
			TextAlign:         "CENTER",
			TextAlignVertical: "MIDDLE",
			FillColor:         "white",
			FillOpacity:       1,
		},
	}, token, BubbleTextID(token.ID, slot))

	return []core.Overlay{shape, text}
}

// buildImageBubble returns a colored circle with an icon on top
func buildImageBubble(token core.Token, sceneDPI float64, position core.Vec2, diameter float64, color, url, label string) []core.Overlay {
	shape := attach(core.Overlay{
		Type:     core.ItemShape,
		Layer:    core.LayerAttachment,
		Position: position,
		Shape: &core.Shape{
			ShapeType:     core.ShapeCircle,
			Width:         diameter,
			Height:        diameter,
			FillColor:     color,
			FillOpacity:   bubbleOpacity,
			StrokeColor:   color,
			StrokeOpacity: bubbleStrokeAlpha,
			StrokeWidth:   0,
		},
	}, token, ImageBackgroundID(token.ID, label))

	// the icon is square, so one dpi renders it hideIconSize pixels wide
	icon := attach(core.Overlay{
		Type:     core.ItemImage,
		Layer:    core.LayerNote,
		Position: position,
		Image: &core.Image{
			Content: core.ImageContent{
				Width:  hideIconDPI,
				Height: hideIconDPI,
				Mime:   "image/png",
				URL:    url,
			},
			Grid: core.ImageGrid{
				DPI:    sceneDPI * hideIconDPI / hideIconSize,
				Offset: core.Vec2{X: hideIconDPI / 2, Y: hideIconDPI / 2},
			},
			Scale: core.Vec2{X: 1, Y: 1},
		},
	}, token, ImageID(token.ID, label))

	return []core.Overlay{shape, icon}
}
