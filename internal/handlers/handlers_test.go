package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owltrackers/extension/internal/config"
	"github.com/owltrackers/extension/internal/dispatcher"
	"github.com/owltrackers/extension/internal/logging"
	"github.com/owltrackers/extension/internal/overlay"
	"github.com/owltrackers/extension/internal/parser"
	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/internal/storage/memory"
	"github.com/owltrackers/extension/internal/tracker"
	"github.com/owltrackers/extension/internal/worker"
	"github.com/owltrackers/extension/pkg/core"
)

const pluginID = "com.owl-trackers"

type nopLogger struct{}

func (nopLogger) Debug(msg string, keysAndValues ...any) {}
func (nopLogger) Info(msg string, keysAndValues ...any)  {}
func (nopLogger) Error(msg string, keysAndValues ...any) {}

func newTestService(t *testing.T) (*dispatcher.Dispatcher, *memory.Backend) {
	t.Helper()

	backend := memory.New(config.MemoryConfig{GridDPI: 300})
	backend.SetTokens([]core.Token{{
		ID:      "tok",
		Type:    core.ItemImage,
		Layer:   core.LayerCharacter,
		Scale:   core.Vec2{X: 1, Y: 1},
		Visible: true,
		Image:   core.ImageContent{Width: 300, Height: 300},
		Grid:    core.ImageGrid{DPI: 300, Offset: core.Vec2{X: 150, Y: 150}},
	}})

	logManager := logging.NewSlogManager()
	logManager.Setup(nil, "error", nil)

	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	svc := NewService(Dependencies{
		Backend:    backend,
		Parser:     parser.NewParser(nil, pluginID),
		LogManager: logManager,
	})
	svc.RegisterHandlers(d)
	return d, backend
}

func dispatch(t *testing.T, d *dispatcher.Dispatcher, command string, args ...string) (any, error) {
	t.Helper()
	return d.Dispatch(dispatcher.Event{Command: command, Args: args})
}

func trackersOf(t *testing.T, b *memory.Backend) []core.Tracker {
	t.Helper()
	tokens, err := b.Tokens(context.Background())
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	return core.DecodeTrackers(tokens[0].Metadata[core.PluginKey(pluginID, core.TrackerMetadataID)])
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(Dependencies{})
	assert.Equal(t, DefaultTimeout, svc.deps.Timeout)
	assert.NotNil(t, svc.deps.Parser)
}

func TestRegisterHandlers(t *testing.T) {
	d, _ := newTestService(t)
	for _, cmd := range []string{
		CmdTrackerAdd, CmdTrackerUpdate, CmdTrackerDelete,
		CmdTrackerToggleMap, CmdTrackerToggleMath, CmdTrackerHide,
		CmdSettingsSet, CmdSettingsGet, CmdSegmentsSet,
	} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}
}

func TestTrackerAdd(t *testing.T) {
	d, b := newTestService(t)

	res, err := dispatch(t, d, CmdTrackerAdd, "tok", "value-max")
	require.NoError(t, err)
	added, ok := res.(core.Tracker)
	require.True(t, ok)
	assert.Equal(t, core.VariantValueMax, added.Variant())

	_, err = dispatch(t, d, CmdTrackerAdd, `"tok"`, `"counter"`)
	require.NoError(t, err)

	trackers := trackersOf(t, b)
	require.Len(t, trackers, 2)
	assert.Equal(t, added.ID, trackers[0].ID)
	assert.Equal(t, core.VariantCounter, trackers[1].Variant())
	assert.False(t, trackers[1].MathEnabled())
}

func TestTrackerAddErrors(t *testing.T) {
	d, _ := newTestService(t)

	_, err := dispatch(t, d, CmdTrackerAdd, "missing", "value")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	_, err = dispatch(t, d, CmdTrackerAdd, "tok", "slider")
	assert.Error(t, err)

	_, err = dispatch(t, d, CmdTrackerAdd, "tok")
	assert.ErrorIs(t, err, parser.ErrArgCount)
}

func TestTrackerAddLimit(t *testing.T) {
	d, b := newTestService(t)
	for i := 0; i < core.MaxTrackerCount; i++ {
		_, err := dispatch(t, d, CmdTrackerAdd, "tok", "checkbox")
		require.NoError(t, err)
	}

	_, err := dispatch(t, d, CmdTrackerAdd, "tok", "checkbox")
	assert.ErrorIs(t, err, ErrTrackerLimit)
	assert.Len(t, trackersOf(t, b), core.MaxTrackerCount)
}

func TestTrackerUpdate(t *testing.T) {
	d, b := newTestService(t)
	res, err := dispatch(t, d, CmdTrackerAdd, "tok", "value")
	require.NoError(t, err)
	id := res.(core.Tracker).ID

	tests := []struct {
		field   string
		content string
		want    float64
	}{
		{"value", "7", 7},
		{"value", "+3", 10},
		{"value", "-12.7", -2},
		{"value", "=4", 4},
		{"value", "abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.field+" "+tt.content, func(t *testing.T) {
			_, err := dispatch(t, d, CmdTrackerUpdate, "tok", id, tt.field, tt.content)
			require.NoError(t, err)
			bubble, ok := trackersOf(t, b)[0].Payload.(core.Bubble)
			require.True(t, ok)
			assert.Equal(t, tt.want, bubble.Value)
		})
	}

	_, err = dispatch(t, d, CmdTrackerUpdate, "tok", id, "name", "AC")
	require.NoError(t, err)
	assert.Equal(t, "AC", *trackersOf(t, b)[0].Name)

	_, err = dispatch(t, d, CmdTrackerUpdate, "tok", id, "max", "3")
	assert.ErrorIs(t, err, tracker.ErrUnknownField)

	_, err = dispatch(t, d, CmdTrackerUpdate, "tok", id, "value")
	assert.ErrorIs(t, err, parser.ErrArgCount)
}

func TestTrackerDeleteAndToggles(t *testing.T) {
	d, b := newTestService(t)
	res, err := dispatch(t, d, CmdTrackerAdd, "tok", "value-max")
	require.NoError(t, err)
	id := res.(core.Tracker).ID
	_, err = dispatch(t, d, CmdTrackerAdd, "tok", "value")
	require.NoError(t, err)

	res, err = dispatch(t, d, CmdTrackerToggleMap, "tok", id)
	require.NoError(t, err)
	list, ok := res.([]core.Tracker)
	require.True(t, ok)
	assert.False(t, list[0].Shown())
	assert.False(t, trackersOf(t, b)[0].Shown())

	_, err = dispatch(t, d, CmdTrackerToggleMath, "tok", id)
	require.NoError(t, err)
	assert.False(t, trackersOf(t, b)[0].MathEnabled())

	_, err = dispatch(t, d, CmdTrackerDelete, "tok", id)
	require.NoError(t, err)
	trackers := trackersOf(t, b)
	require.Len(t, trackers, 1)
	assert.Equal(t, core.VariantValue, trackers[0].Variant())

	// unknown ids leave the list alone
	_, err = dispatch(t, d, CmdTrackerDelete, "tok", "nope")
	require.NoError(t, err)
	assert.Len(t, trackersOf(t, b), 1)
}

func TestHide(t *testing.T) {
	d, b := newTestService(t)
	hiddenKey := core.PluginKey(pluginID, core.HiddenMetadataID)

	res, err := dispatch(t, d, CmdTrackerHide, "tok", "true")
	require.NoError(t, err)
	assert.Equal(t, true, res)
	tokens, err := b.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, true, tokens[0].Metadata[hiddenKey])

	_, err = dispatch(t, d, CmdTrackerHide, "tok", "maybe")
	assert.Error(t, err)

	b.SetRole(core.RolePlayer)
	_, err = dispatch(t, d, CmdTrackerHide, "tok", "false")
	assert.ErrorIs(t, err, ErrNotGM)
}

func TestSettings(t *testing.T) {
	d, b := newTestService(t)
	ctx := context.Background()

	_, err := dispatch(t, d, CmdSettingsSet, "baseBarHeight", "24")
	require.NoError(t, err)
	_, err = dispatch(t, d, CmdSettingsSet, "trackersAboveToken", "true")
	require.NoError(t, err)
	_, err = dispatch(t, d, CmdSegmentsSet, `[["HP", "4"], ["Mana", 2]]`)
	require.NoError(t, err)

	meta, err := b.SceneMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24.0, meta[core.PluginKey(pluginID, core.BaseBarHeightKey)])

	res, err := dispatch(t, d, CmdSettingsGet)
	require.NoError(t, err)
	view, ok := res.(SettingsView)
	require.True(t, ok)
	assert.Equal(t, 24.0, view.Settings.BaseBarHeight)
	assert.True(t, view.Settings.TrackersAboveToken)
	assert.Equal(t, core.SegmentSettings{"HP": 4, "Mana": 2}, view.Segments)

	_, err = dispatch(t, d, CmdSettingsSet, "baseBarHeight", `"tall"`)
	assert.Error(t, err)

	b.SetRole(core.RolePlayer)
	_, err = dispatch(t, d, CmdSettingsSet, "baseBarHeight", "30")
	assert.ErrorIs(t, err, ErrNotGM)
	_, err = dispatch(t, d, CmdSegmentsSet, `[]`)
	assert.ErrorIs(t, err, ErrNotGM)

	// players can still read
	res, err = dispatch(t, d, CmdSettingsGet)
	require.NoError(t, err)
	assert.Equal(t, 24.0, res.(SettingsView).Settings.BaseBarHeight)
}

func TestSettingsGetDefaults(t *testing.T) {
	d, _ := newTestService(t)
	res, err := dispatch(t, d, CmdSettingsGet)
	require.NoError(t, err)
	view := res.(SettingsView)
	assert.Equal(t, core.DefaultSettings(), view.Settings)
	assert.Empty(t, view.Segments)
}

func TestCommandsDriveWorker(t *testing.T) {
	d, b := newTestService(t)

	m, err := worker.NewManager(worker.Dependencies{Parser: parser.NewParser(nil, pluginID)}, b)
	require.NoError(t, err)
	m.RegisterHandlers(d)
	defer m.Close()
	require.NoError(t, m.Start(context.Background()))

	res, err := dispatch(t, d, CmdTrackerAdd, "tok", "value-max")
	require.NoError(t, err)
	id := res.(core.Tracker).ID
	_, err = dispatch(t, d, CmdTrackerUpdate, "tok", id, "max", "10")
	require.NoError(t, err)

	_, ok := b.Overlay(overlay.BarBackgroundID("tok", 0))
	assert.True(t, ok)

	_, err = dispatch(t, d, CmdTrackerDelete, "tok", id)
	require.NoError(t, err)
	_, ok = b.Overlay(overlay.BarBackgroundID("tok", 0))
	assert.False(t, ok)
}
