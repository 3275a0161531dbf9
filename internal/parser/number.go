package parser

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Bounds optionally clamps a parsed value.
type Bounds struct {
	Min *float64
	Max *float64
}

// MinBound returns bounds with only a lower limit
func MinBound(min float64) *Bounds {
	return &Bounds{Min: &min}
}

// Between returns bounds with both limits
func Between(min, max float64) *Bounds {
	return &Bounds{Min: &min, Max: &max}
}

// Clamp applies max first, then min.
func (b *Bounds) Clamp(v float64) float64 {
	if b == nil {
		return v
	}
	if b.Max != nil && v > *b.Max {
		return *b.Max
	}
	if b.Min != nil && v < *b.Min {
		return *b.Min
	}
	return v
}

// ParseNumber converts user input into a tracker value.
//
// A leading "=" forces absolute mode. With inline math enabled, input starting
// with a sign is a delta: the delta is truncated, added to previous, and the sum
// truncated again. Unparseable or non-finite input yields 0, since tracker
// blobs cannot hold ±Inf. Bounds clamp the final result.
func ParseNumber(input string, previous float64, inlineMath bool, bounds *Bounds) float64 {
	if strings.HasPrefix(input, "=") {
		input = strings.TrimSpace(input[1:])
		inlineMath = false
	}

	parsed, ok := parseFloatPrefix(input)
	if !ok {
		return 0
	}

	result := parsed
	if inlineMath && (strings.HasPrefix(input, "+") || strings.HasPrefix(input, "-")) {
		result = math.Trunc(previous + math.Trunc(parsed))
	}
	if !isFinite(result) {
		return 0
	}
	return bounds.Clamp(result)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var floatPrefix = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// parseFloatPrefix reads the longest leading decimal literal, ignoring
// whatever follows it, after skipping leading whitespace. Infinity and
// overflowing literals are rejected; underflow reads as ±0.
func parseFloatPrefix(s string) (float64, bool) {
	s = strings.TrimLeft(s, "\t\n\v\f\r \u00a0\ufeff\u2028\u2029")
	literal := floatPrefix.FindString(s)
	if literal == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, false
		}
	}
	return f, isFinite(f)
}
