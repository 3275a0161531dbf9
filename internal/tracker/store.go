package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/owltrackers/extension/internal/parser"
	"github.com/owltrackers/extension/pkg/core"
)

// Field names accepted by UpdateField
const (
	FieldValue          = "value"
	FieldMax            = "max"
	FieldName           = "name"
	FieldColor          = "color"
	FieldChecked        = "checked"
	FieldSizePercentage = "sizePercentage"
)

// ErrUnknownField is returned for a field name UpdateField does not handle
var ErrUnknownField = errors.New("unknown tracker field")

// SaveFunc persists the full tracker list of one token
type SaveFunc func(ctx context.Context, trackers []core.Tracker) error

// Store is the ordered tracker list of a single token being edited.
// Every mutation writes the whole list back through the save location.
type Store struct {
	mu       sync.Mutex
	trackers []core.Tracker
	save     SaveFunc
}

// NewStore creates an empty store with no save location
func NewStore() *Store {
	return &Store{trackers: []core.Tracker{}}
}

// SetTrackers replaces the list without persisting
func (s *Store) SetTrackers(trackers []core.Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers = append([]core.Tracker(nil), trackers...)
}

// Trackers returns a copy of the current list
func (s *Store) Trackers() []core.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Tracker{}, s.trackers...)
}

// SetSaveLocation registers the persistence callback
func (s *Store) SetSaveLocation(save SaveFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save = save
}

// Overwrite replaces the list and persists it
func (s *Store) Overwrite(ctx context.Context, trackers []core.Tracker) error {
	return s.mutate(ctx, func(_ []core.Tracker) []core.Tracker {
		return append([]core.Tracker(nil), trackers...)
	})
}

// AddBubble appends a value tracker unless the list is full
func (s *Store) AddBubble(ctx context.Context) error { return s.add(ctx, NewBubble) }

// AddCounter appends a counter tracker unless the list is full
func (s *Store) AddCounter(ctx context.Context) error { return s.add(ctx, NewCounter) }

// AddBar appends a value-max tracker unless the list is full
func (s *Store) AddBar(ctx context.Context) error { return s.add(ctx, NewBar) }

// AddCheckbox appends a checkbox tracker unless the list is full
func (s *Store) AddCheckbox(ctx context.Context) error { return s.add(ctx, NewCheckbox) }

// Add appends a tracker of the given variant
func (s *Store) Add(ctx context.Context, variant core.Variant) error {
	switch variant {
	case core.VariantValue:
		return s.AddBubble(ctx)
	case core.VariantCounter:
		return s.AddCounter(ctx)
	case core.VariantValueMax:
		return s.AddBar(ctx)
	case core.VariantCheckbox:
		return s.AddCheckbox(ctx)
	default:
		return fmt.Errorf("unknown tracker variant %q", variant)
	}
}

func (s *Store) add(ctx context.Context, create func([]core.Tracker) core.Tracker) error {
	return s.mutate(ctx, func(list []core.Tracker) []core.Tracker {
		if len(list) >= core.MaxTrackerCount {
			return list
		}
		return append(list, create(list))
	})
}

// Delete removes the tracker with the given id
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, func(list []core.Tracker) []core.Tracker {
		i := indexOf(list, id)
		if i < 0 {
			return list
		}
		return append(list[:i], list[i+1:]...)
	})
}

// ToggleShowOnMap flips the map visibility of a tracker. Unset counts as shown.
func (s *Store) ToggleShowOnMap(ctx context.Context, id string) error {
	return s.mutate(ctx, func(list []core.Tracker) []core.Tracker {
		if i := indexOf(list, id); i >= 0 {
			list[i].ShowOnMap = toggle(list[i].ShowOnMap)
		}
		return list
	})
}

// ToggleInlineMath flips delta parsing for a tracker. Unset counts as enabled.
func (s *Store) ToggleInlineMath(ctx context.Context, id string) error {
	return s.mutate(ctx, func(list []core.Tracker) []core.Tracker {
		if i := indexOf(list, id); i >= 0 {
			list[i].InlineMath = toggle(list[i].InlineMath)
		}
		return list
	})
}

// UpdateField sets one field of a tracker from UI input.
//
// value and max go through the value parser with the tracker's inline math
// flag and current value as baseline. An unknown id leaves the list unchanged
// but it is still persisted.
func (s *Store) UpdateField(ctx context.Context, id, field, content string) error {
	var fieldErr error
	err := s.mutate(ctx, func(list []core.Tracker) []core.Tracker {
		i := indexOf(list, id)
		if i < 0 {
			return list
		}
		updated, err := applyField(list[i], field, content)
		if err != nil {
			fieldErr = err
			return list
		}
		list[i] = updated
		return list
	})
	if fieldErr != nil {
		return fieldErr
	}
	return err
}

func applyField(t core.Tracker, field, content string) (core.Tracker, error) {
	switch field {
	case FieldValue:
		switch p := t.Payload.(type) {
		case core.Bubble:
			p.Value = parser.ParseNumber(content, p.Value, t.MathEnabled(), nil)
			t.Payload = p
		case core.Counter:
			p.Value = parser.ParseNumber(content, p.Value, t.MathEnabled(), nil)
			t.Payload = p
		case core.Bar:
			p.Value = parser.ParseNumber(content, p.Value, t.MathEnabled(), nil)
			t.Payload = p
		case core.Checkbox:
			return t, fmt.Errorf("tracker %s: %w: %s on checkbox", t.ID, ErrUnknownField, field)
		}
	case FieldMax:
		p, ok := t.Payload.(core.Bar)
		if !ok {
			return t, fmt.Errorf("tracker %s: %w: %s on %s", t.ID, ErrUnknownField, field, t.Variant())
		}
		p.Max = parser.ParseNumber(content, p.Max, t.MathEnabled(), nil)
		t.Payload = p
	case FieldChecked:
		p, ok := t.Payload.(core.Checkbox)
		if !ok {
			return t, fmt.Errorf("tracker %s: %w: %s on %s", t.ID, ErrUnknownField, field, t.Variant())
		}
		checked, err := strconv.ParseBool(content)
		if err != nil {
			return t, fmt.Errorf("tracker %s: error parsing checked: %w", t.ID, err)
		}
		p.Checked = checked
		t.Payload = p
	case FieldName:
		name := content
		t.Name = &name
	case FieldColor:
		color, err := parser.ParseColor(content)
		if err != nil {
			return t, fmt.Errorf("tracker %s: %w", t.ID, err)
		}
		t.Color = ((color % PaletteSize) + PaletteSize) % PaletteSize
	case FieldSizePercentage:
		size := parser.ParseNumber(content, t.SizeScale()*100, false, parser.MinBound(1))
		t.SizePercentage = &size
	default:
		return t, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return t, nil
}

// mutate applies fn to a copy of the list and persists the result.
// The in-memory list is replaced before the save location runs.
func (s *Store) mutate(ctx context.Context, fn func([]core.Tracker) []core.Tracker) error {
	s.mu.Lock()
	if s.save == nil {
		s.mu.Unlock()
		panic("tracker: store mutated before SetSaveLocation")
	}
	next := fn(append([]core.Tracker(nil), s.trackers...))
	if next == nil {
		next = []core.Tracker{}
	}
	s.trackers = next
	save := s.save
	snapshot := append([]core.Tracker{}, next...)
	s.mu.Unlock()

	if err := save(ctx, snapshot); err != nil {
		return fmt.Errorf("error saving trackers: %w", err)
	}
	return nil
}

func indexOf(list []core.Tracker, id string) int {
	for i, t := range list {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func toggle(v *bool) *bool {
	next := false
	if v != nil {
		next = !*v
	}
	return &next
}
