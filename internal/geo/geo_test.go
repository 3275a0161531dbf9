package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owltrackers/extension/pkg/core"
)

func testToken() core.Token {
	return core.Token{
		ID:       "tok",
		Type:     core.ItemImage,
		Layer:    core.LayerCharacter,
		Position: core.Vec2{X: 500, Y: 300},
		Scale:    core.Vec2{X: 1, Y: 1},
		Visible:  true,
		Image:    core.ImageContent{Width: 300, Height: 300},
		Grid:     core.ImageGrid{DPI: 300, Offset: core.Vec2{X: 150, Y: 150}},
	}
}

func TestTokenBounds(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*core.Token)
		sceneDPI float64
		want     Size
	}{
		{"identity", func(*core.Token) {}, 300, Size{300, 300}},
		{"scene dpi", func(*core.Token) {}, 150, Size{150, 150}},
		{"scale", func(tk *core.Token) { tk.Scale = core.Vec2{X: 2, Y: 0.5} }, 300, Size{600, 150}},
		{"mirrored", func(tk *core.Token) { tk.Scale = core.Vec2{X: -1, Y: 1} }, 300, Size{300, 300}},
		{"zero grid dpi", func(tk *core.Token) { tk.Grid.DPI = 0 }, 150, Size{300, 300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := testToken()
			tt.mutate(&tk)
			assert.Equal(t, tt.want, TokenBounds(tk, tt.sceneDPI))
		})
	}
}

func TestTokenCenter(t *testing.T) {
	tk := testToken()
	assert.Equal(t, core.Vec2{X: 500, Y: 300}, TokenCenter(tk, 300))

	tk.Grid.Offset = core.Vec2{X: 0, Y: 0}
	assert.Equal(t, core.Vec2{X: 650, Y: 450}, TokenCenter(tk, 300))

	tk.Scale = core.Vec2{X: 2, Y: 2}
	assert.Equal(t, core.Vec2{X: 800, Y: 600}, TokenCenter(tk, 300))

	tk.Scale = core.Vec2{X: 1, Y: 1}
	tk.Rotation = 90
	c := TokenCenter(tk, 300)
	assert.InDelta(t, 350, c.X, 1e-9)
	assert.InDelta(t, 450, c.Y, 1e-9)
}

func TestFillPortion(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		max      float64
		segments int
		want     float64
	}{
		{"half", 5, 10, 0, 0.5},
		{"zero max", 5, 0, 0, 0},
		{"negative max", 5, -3, 4, 0},
		{"over", 15, 10, 0, 1},
		{"under", -5, 10, 0, 0},
		{"exact segment", 5, 10, 4, 0.5},
		{"snap down", 6, 10, 4, 0.5},
		{"snap up", 7, 10, 4, 0.75},
		{"single segment", 4, 10, 1, 0},
		{"single segment full", 6, 10, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FillPortion(tt.value, tt.max, tt.segments))
		})
	}
}

func TestFillPortionMonotonic(t *testing.T) {
	last := -1.0
	for v := -20.0; v <= 40; v += 0.5 {
		f := FillPortion(v, 20, 0)
		assert.GreaterOrEqual(t, f, last)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
		last = f
	}
	for v := -5.0; v <= 5; v++ {
		assert.Equal(t, 0.0, FillPortion(v, 0, 0))
	}
}

func TestFillPortionSnapsToSegments(t *testing.T) {
	for segments := 1; segments <= 7; segments++ {
		for v := -3.0; v <= 13; v += 0.7 {
			f := FillPortion(v, 10, segments)
			k := f * float64(segments)
			assert.InDelta(t, math.Round(k), k, 1e-9, "v=%v segments=%d", v, segments)
			assert.GreaterOrEqual(t, k, -1e-9)
			assert.LessOrEqual(t, k, float64(segments)+1e-9)
		}
	}
}

func bbox(points []core.Vec2) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return
}

func TestRoundedRect(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		points := RoundedRect(100, 20, 10, 1)
		require.NotEmpty(t, points)
		minX, minY, maxX, maxY := bbox(points)
		assert.InDelta(t, 0, minX, 1e-9)
		assert.InDelta(t, 0, minY, 1e-9)
		assert.InDelta(t, 100, maxX, 1e-9)
		assert.InDelta(t, 20, maxY, 1e-9)
	})

	t.Run("partial fill clips width", func(t *testing.T) {
		points := RoundedRect(100, 20, 10, 0.3)
		require.NotEmpty(t, points)
		_, minY, maxX, maxY := bbox(points)
		assert.InDelta(t, 30, maxX, 1e-9)
		assert.InDelta(t, 0, minY, 1e-9)
		assert.InDelta(t, 20, maxY, 1e-9)
	})

	t.Run("empty fill", func(t *testing.T) {
		assert.Empty(t, RoundedRect(100, 20, 10, 0))
		assert.Empty(t, RoundedRect(100, 20, 10, -1))
		assert.Empty(t, RoundedRect(0, 20, 10, 1))
	})

	t.Run("radius limited by height", func(t *testing.T) {
		points := RoundedRect(100, 12, 10, 1)
		_, minY, _, maxY := bbox(points)
		assert.InDelta(t, 0, minY, 1e-9)
		assert.InDelta(t, 12, maxY, 1e-9)
	})

	t.Run("fill narrower than the corner radius", func(t *testing.T) {
		for _, fill := range []float64{0.001, 0.02, 0.05, 0.09, 0.15} {
			points := RoundedRect(100, 20, 10, fill)
			minX, _, maxX, _ := bbox(points)
			assert.InDelta(t, 0, minX, 1e-9, "fill=%v", fill)
			assert.InDelta(t, fill*100, maxX, 1e-9, "fill=%v", fill)

			poly, err := OutlinePolygon(core.Vec2{X: 40, Y: 60}, points)
			require.NoError(t, err, "fill=%v", fill)
			assert.Greater(t, poly.Area(), 0.0)
			assert.LessOrEqual(t, poly.Area(), fill*100*20)
		}
	})

	t.Run("no repeated points", func(t *testing.T) {
		points := RoundedRect(100, 20, 0, 0.5)
		for i := 1; i < len(points); i++ {
			assert.NotEqual(t, points[i-1], points[i])
		}
	})
}

func TestOutlinePolygon(t *testing.T) {
	origin := core.Vec2{X: 10, Y: 20}
	points := RoundedRect(100, 20, 0, 1)

	poly, err := OutlinePolygon(origin, points)
	require.NoError(t, err)
	assert.InDelta(t, 2000, poly.Area(), 1e-6)

	back := PolygonOutline(origin, poly)
	require.Len(t, back, len(points))
	for i := range points {
		assert.InDelta(t, points[i].X, back[i].X, 1e-9)
		assert.InDelta(t, points[i].Y, back[i].Y, 1e-9)
	}

	_, err = OutlinePolygon(origin, points[:2])
	assert.ErrorIs(t, err, ErrDegenerateOutline)
}

func TestBubblePackerBelow(t *testing.T) {
	origin := core.Vec2{X: 100, Y: 100}
	p := NewBubblePacker(origin, Size{Width: 100, Height: 100}, 20, false, 30)

	first := p.Next(1)
	assert.Equal(t, core.Vec2{X: 100 + 2 - 50 + 15, Y: 100 + 50 - 20 - (2 + 15)}, first)

	second := p.Next(1)
	assert.Equal(t, first.X+32, second.X)
	assert.Equal(t, first.Y, second.Y)

	third := p.Next(1)
	assert.Equal(t, second.X+32, third.X)

	// 3*32 + 30 + 2 > 100: wraps to a new row above
	fourth := p.Next(1)
	assert.Equal(t, first.X, fourth.X)
	assert.Equal(t, first.Y-32, fourth.Y)
}

func TestBubblePackerAbove(t *testing.T) {
	origin := core.Vec2{X: 0, Y: 0}
	p := NewBubblePacker(origin, Size{Width: 64, Height: 100}, 40, true, 30)

	first := p.Next(1)
	assert.Equal(t, 50+2+15.0, first.Y)
	second := p.Next(1)
	assert.Equal(t, first.Y, second.Y)
	third := p.Next(1)
	assert.Equal(t, first.X, third.X)
	assert.Equal(t, first.Y+32, third.Y)
}

func TestBubblePackerRowHeightIsTallest(t *testing.T) {
	p := NewBubblePacker(core.Vec2{}, Size{Width: 100, Height: 0}, 0, true, 30)
	p.Next(0.5) // 15
	p.Next(2)   // 60
	next := p.Next(1)
	// new row starts after the 60px bubble
	assert.Equal(t, 2+15+60+2.0, next.Y)
}

func TestBubblePackerNoOverlap(t *testing.T) {
	p := NewBubblePacker(core.Vec2{X: 50, Y: 50}, Size{Width: 140, Height: 140}, 0, false, 30)
	type placed struct {
		pos core.Vec2
		r   float64
	}
	var all []placed
	for i, scale := range []float64{1, 0.5, 1.5, 1, 0.8, 1.2, 1, 1, 0.6, 1.4} {
		pos := p.Next(scale)
		r := 15 * scale
		for _, other := range all {
			if other.pos.Y == pos.Y {
				assert.GreaterOrEqual(t, math.Abs(other.pos.X-pos.X), other.r+r+BubbleSpacing-1e-9, "bubble %d", i)
			}
		}
		all = append(all, placed{pos, r})
	}
}
