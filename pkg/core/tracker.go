// pkg/core/tracker.go
package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Variant discriminates the tracker payload.
type Variant string

const (
	VariantValue    Variant = "value"
	VariantValueMax Variant = "value-max"
	VariantCheckbox Variant = "checkbox"
	VariantCounter  Variant = "counter"
)

const (
	// MaxTrackerCount bounds the tracker list of a single token.
	MaxTrackerCount = 12

	TrackerMetadataID = "trackers"
	HiddenMetadataID  = "hidden"
)

// ErrInvalidTracker is returned when a record fails validation.
var ErrInvalidTracker = errors.New("invalid tracker record")

// Payload is the variant specific part of a tracker.
// Implemented only by Bubble, Bar, Checkbox and Counter.
type Payload interface {
	Variant() Variant
}

// Bubble is a free numeric value rendered in a circle.
type Bubble struct{ Value float64 }

// Bar is a value over a maximum rendered as a partially filled bar.
type Bar struct{ Value, Max float64 }

// Checkbox is a boolean rendered as a glyph in a circle.
type Checkbox struct{ Checked bool }

// Counter is a numeric value that defaults to absolute input.
type Counter struct{ Value float64 }

func (Bubble) Variant() Variant   { return VariantValue }
func (Bar) Variant() Variant      { return VariantValueMax }
func (Checkbox) Variant() Variant { return VariantCheckbox }
func (Counter) Variant() Variant  { return VariantCounter }

// Tracker is a single stat element attached to a token.
type Tracker struct {
	ID             string
	Color          int
	Name           *string
	ShowOnMap      *bool
	InlineMath     *bool
	SizePercentage *float64
	Payload        Payload
}

// Variant returns the discriminant of the tracker payload.
func (t Tracker) Variant() Variant {
	if t.Payload == nil {
		return ""
	}
	return t.Payload.Variant()
}

// IsBar reports whether the tracker renders as a bar.
func (t Tracker) IsBar() bool {
	_, ok := t.Payload.(Bar)
	return ok
}

// IsBubble reports whether the tracker renders as a bubble.
func (t Tracker) IsBubble() bool {
	switch t.Payload.(type) {
	case Bubble, Counter, Checkbox:
		return true
	default:
		return false
	}
}

// Shown is false only when showOnMap was explicitly set to false.
func (t Tracker) Shown() bool {
	return t.ShowOnMap == nil || *t.ShowOnMap
}

// MathEnabled is false only when inlineMath was explicitly set to false.
func (t Tracker) MathEnabled() bool {
	return t.InlineMath == nil || *t.InlineMath
}

// SizeScale returns sizePercentage/100, defaulting to 1.
func (t Tracker) SizeScale() float64 {
	if t.SizePercentage == nil {
		return 1
	}
	return *t.SizePercentage / 100
}

// DisplayName returns the tracker name or the empty string.
func (t Tracker) DisplayName() string {
	if t.Name == nil {
		return ""
	}
	return *t.Name
}

// trackerJSON is the persisted metadata shape.
type trackerJSON struct {
	ID             string   `json:"id"`
	Variant        Variant  `json:"variant"`
	Color          int      `json:"color"`
	Name           *string  `json:"name,omitempty"`
	ShowOnMap      *bool    `json:"showOnMap,omitempty"`
	InlineMath     *bool    `json:"inlineMath,omitempty"`
	SizePercentage *float64 `json:"sizePercentage,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	Checked        *bool    `json:"checked,omitempty"`
}

// MarshalJSON emits only the fields required by the variant.
func (t Tracker) MarshalJSON() ([]byte, error) {
	out := trackerJSON{
		ID:             t.ID,
		Color:          t.Color,
		Name:           t.Name,
		ShowOnMap:      t.ShowOnMap,
		InlineMath:     t.InlineMath,
		SizePercentage: t.SizePercentage,
	}
	switch p := t.Payload.(type) {
	case Bubble:
		out.Variant = VariantValue
		out.Value = &p.Value
	case Counter:
		out.Variant = VariantCounter
		out.Value = &p.Value
	case Bar:
		out.Variant = VariantValueMax
		out.Value = &p.Value
		out.Max = &p.Max
	case Checkbox:
		out.Variant = VariantCheckbox
		out.Checked = &p.Checked
	default:
		return nil, fmt.Errorf("tracker %q: %w: missing payload", t.ID, ErrInvalidTracker)
	}
	return json.Marshal(out)
}

// UnmarshalJSON validates the record before accepting it.
func (t *Tracker) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := trackerFromRaw(raw)
	if !ok {
		return ErrInvalidTracker
	}
	*t = parsed
	return nil
}

// ValidateTracker checks presence and type of every field the variant requires.
// Any mismatch invalidates the whole record.
func ValidateTracker(raw any) bool {
	_, ok := trackerFromRaw(raw)
	return ok
}

// DecodeTrackers converts a metadata blob into a tracker list.
// Anything malformed yields an empty list.
func DecodeTrackers(raw any) []Tracker {
	switch v := raw.(type) {
	case nil:
		return []Tracker{}
	case []byte:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return []Tracker{}
		}
		raw = decoded
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return []Tracker{}
		}
		raw = decoded
	case []Tracker:
		return v
	}

	list, ok := raw.([]any)
	if !ok {
		return []Tracker{}
	}
	trackers := make([]Tracker, 0, len(list))
	for _, item := range list {
		t, ok := trackerFromRaw(item)
		if !ok {
			return []Tracker{}
		}
		trackers = append(trackers, t)
	}
	return trackers
}

// EncodeTrackers converts a tracker list into the generic metadata form.
func EncodeTrackers(trackers []Tracker) (any, error) {
	data, err := json.Marshal(trackers)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func trackerFromRaw(raw any) (Tracker, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Tracker{}, false
	}

	var t Tracker

	id, ok := m["id"].(string)
	if !ok {
		return Tracker{}, false
	}
	t.ID = id

	color, ok := m["color"].(float64)
	if !ok {
		return Tracker{}, false
	}
	t.Color = int(color)

	if v, present := m["name"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return Tracker{}, false
		}
		t.Name = &s
	}
	if v, present := m["showOnMap"]; present && v != nil {
		b, ok := v.(bool)
		if !ok {
			return Tracker{}, false
		}
		t.ShowOnMap = &b
	}
	if v, present := m["inlineMath"]; present && v != nil {
		b, ok := v.(bool)
		if !ok {
			return Tracker{}, false
		}
		t.InlineMath = &b
	}
	if v, present := m["sizePercentage"]; present && v != nil {
		f, ok := v.(float64)
		if !ok {
			return Tracker{}, false
		}
		t.SizePercentage = &f
	}

	variant, _ := m["variant"].(string)
	switch Variant(variant) {
	case VariantValue:
		value, ok := m["value"].(float64)
		if !ok {
			return Tracker{}, false
		}
		t.Payload = Bubble{Value: value}
	case VariantCounter:
		value, ok := m["value"].(float64)
		if !ok {
			return Tracker{}, false
		}
		t.Payload = Counter{Value: value}
	case VariantValueMax:
		value, ok := m["value"].(float64)
		if !ok {
			return Tracker{}, false
		}
		max, ok := m["max"].(float64)
		if !ok {
			return Tracker{}, false
		}
		t.Payload = Bar{Value: value, Max: max}
	case VariantCheckbox:
		checked, ok := m["checked"].(bool)
		if !ok {
			return Tracker{}, false
		}
		t.Payload = Checkbox{Checked: checked}
	default:
		return Tracker{}, false
	}

	return t, true
}
