package parser

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		previous   float64
		inlineMath bool
		bounds     *Bounds
		want       float64
	}{
		{"delta add", "+3", 7, true, nil, 10},
		{"delta subtract", "-4", 7, true, nil, 3},
		{"delta truncated before add", "+2.9", 7, true, nil, 9},
		{"negative delta truncated toward zero", "-2.9", 7, true, nil, 5},
		{"fractional previous truncated after add", "+1", 2.5, true, nil, 3},
		{"absolute with math", "3", 7, true, nil, 3},
		{"absolute fraction", "3.75", 7, true, nil, 3.75},
		{"equals forces absolute", "=3", 7, true, nil, 3},
		{"equals with spaces", "=  -3", 7, true, nil, -3},
		{"signed without math is absolute", "+3", 7, false, nil, 3},
		{"negative without math is absolute", "-3.5", 7, false, nil, -3.5},
		{"garbage", "abc", 7, true, nil, 0},
		{"empty", "", 7, true, nil, 0},
		{"only equals", "=", 7, true, nil, 0},
		{"numeric prefix", "12abc", 0, true, nil, 12},
		{"leading whitespace absolute", "  8", 0, true, nil, 8},
		{"exponent", "1e2", 0, true, nil, 100},
		{"dangling exponent", "2e", 0, true, nil, 2},
		{"leading dot", ".5", 0, true, nil, 0.5},
		{"trailing dot", "5.", 0, true, nil, 5},
		{"infinity is rejected", "Infinity", 5, false, nil, 0},
		{"signed infinity delta is rejected", "-Infinity", 5, true, nil, 0},
		{"overflow is rejected", "1e999", 5, false, nil, 0},
		{"overflowing delta is rejected", "+1e400", 5, true, nil, 0},
		{"underflow reads as zero", "1e-400", 5, false, nil, 0},
		{"sum past float range", "+1e308", math.MaxFloat64, true, nil, 0},
		{"nan literal", "NaN", 4, true, nil, 0},
		{"max clamp", "150", 0, false, Between(0, 100), 100},
		{"min clamp", "-5", 0, false, Between(0, 100), 0},
		{"delta clamped above", "+50", 80, true, Between(0, 100), 100},
		{"delta clamped below", "-50", 20, true, Between(0, 100), 0},
		{"min only", "-5", 0, false, MinBound(1), 1},
		{"within bounds", "40", 0, false, Between(0, 100), 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNumber(tt.input, tt.previous, tt.inlineMath, tt.bounds))
		})
	}
}

func TestParseNumberDeltaLaw(t *testing.T) {
	for _, previous := range []float64{-10, 0, 3, 7, 250} {
		for _, d := range []string{"+1", "+12", "-3", "-0", "+0.5", "-7.9"} {
			delta, _ := parseFloatPrefix(d)
			want := math.Trunc(previous + math.Trunc(delta))
			assert.Equal(t, want, ParseNumber(d, previous, true, nil), "previous=%v input=%q", previous, d)
		}
	}
}

func TestParseNumberAbsoluteLaw(t *testing.T) {
	for _, previous := range []float64{-10, 0, 7} {
		for _, inline := range []bool{true, false} {
			assert.Equal(t, 4.25, ParseNumber("=4.25", previous, inline, nil))
			assert.Equal(t, -2.0, ParseNumber("=-2", previous, inline, nil))
		}
	}
}

func TestParseNumberBoundsIdempotence(t *testing.T) {
	b := Between(-5, 5)
	for _, in := range []string{"+100", "-100", "100", "-100.5", "=7", "0", "3.3", "junk"} {
		for _, previous := range []float64{-5, 0, 5} {
			got := ParseNumber(in, previous, true, b)
			assert.GreaterOrEqual(t, got, -5.0, "input=%q", in)
			assert.LessOrEqual(t, got, 5.0, "input=%q", in)
		}
	}
}

func TestBoundsNil(t *testing.T) {
	var b *Bounds
	assert.Equal(t, 42.0, b.Clamp(42))
}
