// Package tracker creates trackers and owns the per-token editing store.
package tracker

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/owltrackers/extension/pkg/core"
)

// PaletteSize is the number of colors trackers cycle through
const PaletteSize = 9

var palette = [PaletteSize]string{
	"#f1555b", // red
	"#f29c45", // orange
	"#f5d146", // yellow
	"#7bc96f", // green
	"#3fb8af", // teal
	"#4e8fe0", // blue
	"#9b6ee8", // purple
	"#e56fb7", // pink
	"#b0b0b0", // grey
}

// Color returns the palette entry for a color index. Out of range indices wrap.
func Color(index int) string {
	i := index % PaletteSize
	if i < 0 {
		i += PaletteSize
	}
	return palette[i]
}

// colorStep is the (base, stride) pair for each variant. Every stride is
// coprime with the palette size so a variant visits all nine colors.
var colorStep = map[core.Variant][2]int{
	core.VariantValue:    {5, 2},
	core.VariantCounter:  {6, 2},
	core.VariantValueMax: {2, 4},
	core.VariantCheckbox: {2, 2},
}

// NextColor picks the color for a new tracker of variant given the existing list
func NextColor(existing []core.Tracker, variant core.Variant) int {
	count := 0
	for _, t := range existing {
		if t.Variant() == variant {
			count++
		}
	}
	step, ok := colorStep[variant]
	if !ok {
		step = colorStep[core.VariantCheckbox]
	}
	return (step[0] + count*step[1]) % PaletteSize
}

var idSeq atomic.Uint32

// NewID returns a millisecond timestamp followed by a random suffix.
// The timestamp keeps ids roughly sortable by creation time.
func NewID() string {
	ms := strconv.FormatInt(time.Now().UnixMilli(), 10)
	suffix, err := uuid.NewRandom()
	if err != nil {
		// entropy exhausted; fall back to a process-local sequence
		return fmt.Sprintf("%s-%d", ms, idSeq.Add(1))
	}
	return ms + "-" + suffix.String()[:8] + suffix.String()[9:13]
}

// NewBubble creates a value tracker
func NewBubble(existing []core.Tracker) core.Tracker {
	return core.Tracker{
		ID:      NewID(),
		Color:   NextColor(existing, core.VariantValue),
		Payload: core.Bubble{Value: 0},
	}
}

// NewCounter creates a counter tracker. Counters take absolute input by default.
func NewCounter(existing []core.Tracker) core.Tracker {
	inlineMath := false
	return core.Tracker{
		ID:         NewID(),
		Color:      NextColor(existing, core.VariantCounter),
		InlineMath: &inlineMath,
		Payload:    core.Counter{Value: 0},
	}
}

// NewBar creates a value-max tracker
func NewBar(existing []core.Tracker) core.Tracker {
	return core.Tracker{
		ID:      NewID(),
		Color:   NextColor(existing, core.VariantValueMax),
		Payload: core.Bar{Value: 0, Max: 0},
	}
}

// NewCheckbox creates an unchecked checkbox tracker
func NewCheckbox(existing []core.Tracker) core.Tracker {
	return core.Tracker{
		ID:      NewID(),
		Color:   NextColor(existing, core.VariantCheckbox),
		Payload: core.Checkbox{Checked: false},
	}
}

// New creates a tracker of the given variant
func New(existing []core.Tracker, variant core.Variant) (core.Tracker, error) {
	switch variant {
	case core.VariantValue:
		return NewBubble(existing), nil
	case core.VariantCounter:
		return NewCounter(existing), nil
	case core.VariantValueMax:
		return NewBar(existing), nil
	case core.VariantCheckbox:
		return NewCheckbox(existing), nil
	default:
		return core.Tracker{}, fmt.Errorf("unknown tracker variant %q", variant)
	}
}
