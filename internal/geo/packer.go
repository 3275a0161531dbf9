package geo

import "github.com/owltrackers/extension/pkg/core"

// BubbleSpacing is the gap between bubbles and around the bar stack
const BubbleSpacing = 2.0

// BubblePacker places bubbles left to right in rows across the token width.
// It is created once per token per layout pass.
type BubblePacker struct {
	origin       core.Vec2
	bounds       Size
	barHeight    float64
	above        bool
	baseDiameter float64

	rowX      float64
	rowHeight float64
	offsetY   float64
}

// NewBubblePacker starts a packer. origin is the layout origin of the token,
// barHeight the height already used by bars. When above is set the rows grow
// downward from the top of the layout area, otherwise they grow upward from
// the top of the bar stack.
func NewBubblePacker(origin core.Vec2, bounds Size, barHeight float64, above bool, baseDiameter float64) *BubblePacker {
	if baseDiameter <= 0 {
		baseDiameter = core.DefaultBubbleDiameter
	}
	return &BubblePacker{
		origin:       origin,
		bounds:       bounds,
		barHeight:    barHeight,
		above:        above,
		baseDiameter: baseDiameter,
	}
}

// Next returns the center of the next bubble of the given size scale
func (p *BubblePacker) Next(sizeScale float64) core.Vec2 {
	d := p.baseDiameter * sizeScale

	if p.rowX+d+BubbleSpacing > p.bounds.Width {
		p.offsetY += p.rowHeight + BubbleSpacing
		p.rowX = 0
		p.rowHeight = 0
	}
	if d > p.rowHeight {
		p.rowHeight = d
	}

	dir := -1.0
	barOffset := p.barHeight
	if p.above {
		dir = 1
		barOffset = 0
	}

	pos := core.Vec2{
		X: p.origin.X + BubbleSpacing - p.bounds.Width/2 + p.rowX + d/2,
		Y: p.origin.Y + p.bounds.Height/2 - barOffset + dir*(BubbleSpacing+d/2+p.offsetY),
	}

	p.rowX += d + BubbleSpacing
	return pos
}
