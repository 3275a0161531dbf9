package geo

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/owltrackers/extension/pkg/core"
)

// arcSteps is the number of segments per rounded corner
const arcSteps = 8

// FillPortion returns the filled fraction of a bar. With segments > 0 the
// result snaps to the nearest multiple of 1/segments.
func FillPortion(value, max float64, segments int) float64 {
	if max <= 0 || math.IsNaN(value) || math.IsNaN(max) {
		return 0
	}
	fraction := math.Min(math.Max(value/max, 0), 1)
	if segments > 0 {
		n := float64(segments)
		fraction = math.Round(fraction*n) / n
	}
	return fraction
}

// RoundedRect returns a closed outline of a width x height rectangle with
// rounded corners, origin at its top-left corner, traced clockwise from the
// end of the top-left corner. fill < 1 cuts the outline at x = fill*width,
// keeping whatever part of the left corners lies inside the cut. fill <= 0
// yields nil.
func RoundedRect(width, height, radius, fill float64) []core.Vec2 {
	if fill <= 0 || width <= 0 || height <= 0 {
		return nil
	}
	fill = math.Min(fill, 1)
	r := math.Max(0, math.Min(radius, math.Min(width, height)/2))

	corners := []struct {
		center core.Vec2
		start  float64
	}{
		{core.Vec2{X: width - r, Y: r}, -math.Pi / 2},
		{core.Vec2{X: width - r, Y: height - r}, 0},
		{core.Vec2{X: r, Y: height - r}, math.Pi / 2},
		{core.Vec2{X: r, Y: r}, math.Pi},
	}

	points := make([]core.Vec2, 0, 4*(arcSteps+1))
	for _, c := range corners {
		for i := 0; i <= arcSteps; i++ {
			a := c.start + float64(i)*(math.Pi/2)/arcSteps
			points = append(points, core.Vec2{
				X: c.center.X + r*math.Cos(a),
				Y: c.center.Y + r*math.Sin(a),
			})
		}
	}

	points = dedupe(points)
	if fill < 1 {
		points = dedupe(clipRight(points, fill*width))
	}
	return points
}

// clipRight cuts a convex closed outline to the half plane x <= clip.
func clipRight(points []core.Vec2, clip float64) []core.Vec2 {
	out := make([]core.Vec2, 0, len(points)+2)
	for i, q := range points {
		p := points[(i+len(points)-1)%len(points)]
		pIn, qIn := p.X <= clip, q.X <= clip
		switch {
		case pIn && qIn:
			out = append(out, q)
		case pIn:
			out = append(out, crossAt(p, q, clip))
		case qIn:
			out = append(out, crossAt(p, q, clip), q)
		}
	}
	return out
}

// crossAt returns where segment pq meets the vertical line x = clip
func crossAt(p, q core.Vec2, clip float64) core.Vec2 {
	t := (clip - p.X) / (q.X - p.X)
	return core.Vec2{X: clip, Y: p.Y + t*(q.Y-p.Y)}
}

// dedupe drops consecutive repeated points, including the wrap-around pair
func dedupe(points []core.Vec2) []core.Vec2 {
	const eps = 1e-9
	same := func(a, b core.Vec2) bool {
		return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
	}
	out := points[:0]
	for _, p := range points {
		if len(out) > 0 && same(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && same(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}

// ErrDegenerateOutline is returned for outlines with fewer than three points
var ErrDegenerateOutline = errors.New("outline needs at least three points")

// OutlinePolygon converts a curve outline, relative to origin, into a
// polygon in scene coordinates.
func OutlinePolygon(origin core.Vec2, points []core.Vec2) (geom.Polygon, error) {
	if len(points) < 3 {
		return geom.Polygon{}, ErrDegenerateOutline
	}

	flat := make([]float64, 0, (len(points)+1)*2)
	for _, p := range points {
		flat = append(flat, origin.X+p.X, origin.Y+p.Y)
	}
	// close the ring
	flat = append(flat, origin.X+points[0].X, origin.Y+points[0].Y)

	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	poly := geom.NewPolygon([]geom.LineString{ring})
	if err := poly.Validate(); err != nil {
		return geom.Polygon{}, fmt.Errorf("invalid outline: %w", err)
	}
	return poly, nil
}

// PolygonOutline converts a polygon back into an outline relative to origin.
// The closing point is dropped.
func PolygonOutline(origin core.Vec2, poly geom.Polygon) []core.Vec2 {
	if poly.IsEmpty() {
		return nil
	}
	seq := poly.ExteriorRing().Coordinates()
	n := seq.Length()
	if n > 1 {
		n--
	}
	out := make([]core.Vec2, n)
	for i := 0; i < n; i++ {
		xy := seq.GetXY(i)
		out[i] = core.Vec2{X: xy.X - origin.X, Y: xy.Y - origin.Y}
	}
	return out
}
