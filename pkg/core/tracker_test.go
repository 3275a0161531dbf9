package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTracker(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want bool
	}{
		{"value", map[string]any{"id": "a", "variant": "value", "color": 1.0, "value": 3.0}, true},
		{"counter", map[string]any{"id": "a", "variant": "counter", "color": 1.0, "value": 0.0}, true},
		{"value-max", map[string]any{"id": "a", "variant": "value-max", "color": 2.0, "value": 3.0, "max": 10.0}, true},
		{"checkbox", map[string]any{"id": "a", "variant": "checkbox", "color": 2.0, "checked": false}, true},
		{"optional fields", map[string]any{
			"id": "a", "variant": "value", "color": 1.0, "value": 3.0,
			"name": "HP", "showOnMap": false, "inlineMath": true, "sizePercentage": 50.0,
		}, true},
		{"missing max", map[string]any{"id": "a", "variant": "value-max", "color": 2.0, "value": 3.0}, false},
		{"string value", map[string]any{"id": "a", "variant": "value", "color": 1.0, "value": "3"}, false},
		{"checkbox without checked", map[string]any{"id": "a", "variant": "checkbox", "color": 2.0}, false},
		{"unknown variant", map[string]any{"id": "a", "variant": "dice", "color": 1.0, "value": 1.0}, false},
		{"missing id", map[string]any{"variant": "value", "color": 1.0, "value": 1.0}, false},
		{"missing color", map[string]any{"id": "a", "variant": "value", "value": 1.0}, false},
		{"name wrong type", map[string]any{"id": "a", "variant": "value", "color": 1.0, "value": 1.0, "name": 5.0}, false},
		{"not an object", []any{"a"}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateTracker(tt.raw))
		})
	}
}

func TestDecodeTrackers(t *testing.T) {
	valid := map[string]any{"id": "a", "variant": "value", "color": 5.0, "value": 7.0}
	invalid := map[string]any{"id": "b", "variant": "value-max", "color": 2.0}

	t.Run("valid list", func(t *testing.T) {
		got := DecodeTrackers([]any{valid})
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, Bubble{Value: 7}, got[0].Payload)
	})

	t.Run("one invalid record empties the list", func(t *testing.T) {
		assert.Empty(t, DecodeTrackers([]any{valid, invalid}))
	})

	t.Run("not a list", func(t *testing.T) {
		assert.Empty(t, DecodeTrackers(valid))
		assert.Empty(t, DecodeTrackers("trackers"))
		assert.Empty(t, DecodeTrackers(nil))
	})

	t.Run("raw json", func(t *testing.T) {
		got := DecodeTrackers(json.RawMessage(`[{"id":"x","variant":"checkbox","color":2,"checked":true}]`))
		require.Len(t, got, 1)
		assert.Equal(t, Checkbox{Checked: true}, got[0].Payload)
	})

	t.Run("broken json", func(t *testing.T) {
		assert.Empty(t, DecodeTrackers([]byte(`[{`)))
	})
}

func TestTrackerJSONRoundTrip(t *testing.T) {
	name := "HP"
	hidden := false
	in := []Tracker{
		{ID: "1", Color: 2, Name: &name, ShowOnMap: &hidden, Payload: Bar{Value: 0, Max: 0}},
		{ID: "2", Color: 6, Payload: Counter{Value: 3}},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":"1","variant":"value-max","color":2,"name":"HP","showOnMap":false,"value":0,"max":0},
		{"id":"2","variant":"counter","color":6,"value":3}
	]`, string(data))

	var out []Tracker
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestTrackerMarshalWithoutPayload(t *testing.T) {
	_, err := json.Marshal(Tracker{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidTracker)
}

func TestTrackerDefaults(t *testing.T) {
	tr := Tracker{Payload: Bubble{}}
	assert.True(t, tr.Shown())
	assert.True(t, tr.MathEnabled())
	assert.Equal(t, 1.0, tr.SizeScale())
	assert.True(t, tr.IsBubble())
	assert.False(t, tr.IsBar())

	size := 150.0
	off := false
	tr = Tracker{Payload: Bar{}, SizePercentage: &size, ShowOnMap: &off, InlineMath: &off}
	assert.False(t, tr.Shown())
	assert.False(t, tr.MathEnabled())
	assert.Equal(t, 1.5, tr.SizeScale())
	assert.True(t, tr.IsBar())
}

func TestSettingsBarHeight(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, DefaultBarHeight, s.BarHeight())

	s.BaseBarHeight = 24
	assert.Equal(t, 24.0, s.BarHeight())

	s.BarHeightIsReduced = true
	assert.Equal(t, ReducedBarHeight, s.BarHeight())

	assert.Equal(t, DefaultBubbleDiameter, Settings{}.BubbleDiameter())
	assert.Equal(t, DefaultBarHeight, Settings{}.BarHeight())
}

func TestMetadataMerge(t *testing.T) {
	m := Metadata{"a": 1.0, "b": "x"}
	out := m.Merge(Metadata{"a": 2.0, "b": nil, "c": true})
	assert.Equal(t, Metadata{"a": 2.0, "c": true}, out)
	assert.Equal(t, Metadata{"a": 1.0, "b": "x"}, m)
}
