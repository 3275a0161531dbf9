package overlay

import (
	"github.com/owltrackers/extension/internal/geo"
	"github.com/owltrackers/extension/internal/visibility"
	"github.com/owltrackers/extension/pkg/core"
)

// Input is everything needed to lay out one token
type Input struct {
	Token    core.Token
	Trackers []core.Tracker
	Hidden   bool
	Mode     visibility.Mode
	Settings core.Settings
	Segments core.SegmentSettings
	SceneDPI float64
}

// Plan is the set of scene operations for one token. Adds are upserts by id.
type Plan struct {
	Add    []core.Overlay
	Delete []string
}

func (p *Plan) add(o ...core.Overlay) { p.Add = append(p.Add, o...) }
func (p *Plan) del(ids ...string)     { p.Delete = append(p.Delete, ids...) }

// Compile lays out a token's trackers. The result depends only on in.
func Compile(in Input) Plan {
	var plan Plan
	switch in.Mode {
	case visibility.Full:
		compileFull(in, &plan)
	case visibility.Limited:
		compileLimited(in, &plan)
	default:
		plan.del(AllIDs(in.Token.ID)...)
	}
	return plan
}

// layoutOrigin is the token center, moved up a token height when trackers
// are drawn above the token.
func layoutOrigin(in Input) (core.Vec2, geo.Size) {
	bounds := geo.TokenBounds(in.Token, in.SceneDPI)
	origin := geo.TokenCenter(in.Token, in.SceneDPI)
	if in.Settings.TrackersAboveToken {
		origin.Y -= bounds.Height
	}
	return origin, bounds
}

func compileFull(in Input, plan *Plan) {
	id := in.Token.ID
	origin, bounds := layoutOrigin(in)
	offset := in.Settings.VerticalOffset
	baseHeight := in.Settings.BarHeight()
	diameter := in.Settings.BubbleDiameter()

	var bars, bubbles []core.Tracker
	for _, t := range in.Trackers {
		switch t.Payload.(type) {
		case core.Bar:
			bars = append(bars, t)
		case core.Bubble, core.Counter, core.Checkbox:
			bubbles = append(bubbles, t)
		}
	}

	stacked := 0.0
	for slot, t := range bars {
		if !t.Shown() {
			plan.del(BarIDs(id, slot)...)
			continue
		}
		barOrigin := core.Vec2{
			X: origin.X,
			Y: origin.Y - stacked + bounds.Height/2 - offset,
		}
		plan.add(buildBar(in.Token, bounds, t, barOrigin, slot, baseHeight, 0, true)...)
		stacked += baseHeight * t.SizeScale()
	}
	for slot := len(bars); slot < core.MaxTrackerCount; slot++ {
		plan.del(BarIDs(id, slot)...)
	}

	packer := geo.NewBubblePacker(origin, bounds, stacked, in.Settings.TrackersAboveToken, diameter)

	if in.Hidden {
		pos := packer.Next(1)
		pos.Y -= offset
		plan.add(buildImageBubble(in.Token, in.SceneDPI, pos, diameter, hideIconColor, HideIconURL, HideLabel)...)
	} else {
		plan.del(ImageIDs(id, HideLabel)...)
	}

	for slot, t := range bubbles {
		if !t.Shown() {
			plan.del(BubbleIDs(id, slot)...)
			continue
		}
		pos := packer.Next(t.SizeScale())
		pos.Y -= offset
		plan.add(buildBubble(in.Token, t, pos, slot, diameter)...)
	}
	for slot := len(bubbles); slot < core.MaxTrackerCount; slot++ {
		plan.del(BubbleIDs(id, slot)...)
	}
}

func compileLimited(in Input, plan *Plan) {
	id := in.Token.ID
	origin, bounds := layoutOrigin(in)
	offset := in.Settings.VerticalOffset

	var bars []core.Tracker
	for _, t := range in.Trackers {
		if !t.IsBar() || !t.Shown() || t.Name == nil {
			continue
		}
		if _, ok := in.Segments.Segments(*t.Name); ok {
			bars = append(bars, t)
		}
	}

	stacked := 0.0
	for slot, t := range bars {
		segments, _ := in.Segments.Segments(*t.Name)
		barOrigin := core.Vec2{
			X: origin.X,
			Y: origin.Y - stacked + bounds.Height/2 - offset,
		}
		plan.add(buildBar(in.Token, bounds, t, barOrigin, slot, core.MinimalBarHeight, segments, false)...)
		stacked += core.MinimalBarHeight * t.SizeScale()
	}
	for slot := len(bars); slot < core.MaxTrackerCount; slot++ {
		plan.del(BarIDs(id, slot)...)
	}

	plan.del(BarTextIDs(id)...)
	for slot := 0; slot < core.MaxTrackerCount; slot++ {
		plan.del(BubbleIDs(id, slot)...)
	}
	plan.del(ImageIDs(id, HideLabel)...)
}
