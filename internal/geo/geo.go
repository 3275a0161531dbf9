// Package geo holds the scene geometry used to lay out tracker overlays.
// Scene coordinates are planar pixels with y growing downward.
package geo

import (
	"math"

	"github.com/owltrackers/extension/pkg/core"
)

// Size is a width/height pair in scene pixels
type Size struct {
	Width  float64
	Height float64
}

// dpiScale converts image pixels into scene pixels
func dpiScale(token core.Token, sceneDPI float64) float64 {
	if token.Grid.DPI == 0 {
		return 1
	}
	return sceneDPI / token.Grid.DPI
}

// TokenBounds returns the rendered size of a token image. Mirrored tokens
// have negative scale; the returned size is always positive.
func TokenBounds(token core.Token, sceneDPI float64) Size {
	s := dpiScale(token, sceneDPI)
	return Size{
		Width:  math.Abs(token.Image.Width * s * token.Scale.X),
		Height: math.Abs(token.Image.Height * s * token.Scale.Y),
	}
}

// TokenCenter returns the scene position of the middle of the token image.
// The token position marks its grid offset, so the center is the offset
// to image middle vector, scaled and rotated with the token.
func TokenCenter(token core.Token, sceneDPI float64) core.Vec2 {
	s := dpiScale(token, sceneDPI)
	dx := (token.Image.Width/2 - token.Grid.Offset.X) * s * token.Scale.X
	dy := (token.Image.Height/2 - token.Grid.Offset.Y) * s * token.Scale.Y

	if token.Rotation != 0 {
		rad := token.Rotation * math.Pi / 180
		sin, cos := math.Sincos(rad)
		dx, dy = dx*cos-dy*sin, dx*sin+dy*cos
	}

	return core.Vec2{X: token.Position.X + dx, Y: token.Position.Y + dy}
}
