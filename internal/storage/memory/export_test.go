package memory

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owltrackers/extension/internal/config"
	v1 "github.com/owltrackers/extension/internal/storage/memory/export/v1"
	"github.com/owltrackers/extension/pkg/core"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	ts := time.Date(2024, 3, 9, 18, 30, 5, 0, time.UTC)
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
	return ts
}

func seededBackend(t *testing.T, cfg config.MemoryConfig) *Backend {
	t.Helper()
	b := New(cfg)
	tok := testToken("tok")
	tok.Metadata = core.Metadata{
		"p/trackers": []any{
			map[string]any{"id": "1", "variant": "value", "value": 3.0, "color": 0.0},
		},
		"p/hidden": true,
	}
	b.PutToken(tok)
	require.NoError(t, b.AddOverlays(context.Background(), []core.Overlay{
		{ID: "tok-0-bubble-bg", AttachedTo: "tok"},
		{ID: "gone-0-bar-bg", AttachedTo: "gone"},
	}))
	return b
}

func readExport(t *testing.T, path string, compressed bool) v1.Export {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var export v1.Export
	if compressed {
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		defer gz.Close()
		require.NoError(t, json.NewDecoder(gz).Decode(&export))
	} else {
		require.NoError(t, json.NewDecoder(f).Decode(&export))
	}
	return export
}

func TestExportJSON(t *testing.T) {
	ts := fixedNow(t)
	dir := t.TempDir()
	b := seededBackend(t, config.MemoryConfig{OutputDir: dir, PluginID: "p"})

	path, err := b.Export()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scene_20240309_183005.json"), path)
	assert.Equal(t, path, b.GetExportedFilePath())

	export := readExport(t, path, false)
	assert.Equal(t, v1.Version, export.Version)
	assert.True(t, ts.Equal(export.ExportedAt))
	assert.Equal(t, core.RoleGM, export.Role)
	require.Len(t, export.Tokens, 1)
	assert.Equal(t, 1, export.Tokens[0].TrackerCount)
	assert.True(t, export.Tokens[0].Hidden)
	assert.Equal(t, []string{"tok-0-bubble-bg"}, export.Tokens[0].OverlayIDs)
	assert.Equal(t, []string{"gone-0-bar-bg"}, export.Orphans)
	require.Len(t, export.Overlays, 2)
	assert.Equal(t, "gone-0-bar-bg", export.Overlays[0].ID)
}

func TestExportGzipJSON(t *testing.T) {
	fixedNow(t)
	dir := t.TempDir()
	b := seededBackend(t, config.MemoryConfig{OutputDir: dir, CompressOutput: true, PluginID: "p"})

	require.NoError(t, b.Close())
	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "scene_20240309_183005.json.gz"), path)

	export := readExport(t, path, true)
	assert.Len(t, export.Tokens, 1)
}

func TestExportCreatesOutputDir(t *testing.T) {
	fixedNow(t)
	dir := filepath.Join(t.TempDir(), "nested", "scenes")
	b := New(config.MemoryConfig{OutputDir: dir})

	path, err := b.Export()
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	export := readExport(t, path, false)
	assert.Empty(t, export.Tokens)
	assert.Empty(t, export.Overlays)
	assert.NotNil(t, export.Metadata)
}

func TestBuildIsDeterministic(t *testing.T) {
	ts := time.Unix(0, 0)
	data := v1.SceneData{
		PluginID: "p",
		Tokens:   []core.Token{testToken("a")},
		Overlays: map[string]core.Overlay{
			"a-1": {ID: "a-1", AttachedTo: "a"},
			"a-0": {ID: "a-0", AttachedTo: "a"},
			"a-2": {ID: "a-2", AttachedTo: "a"},
		},
	}

	first := v1.Build(data, ts)
	second := v1.Build(data, ts)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a-0", "a-1", "a-2"}, first.Tokens[0].OverlayIDs)
	assert.Equal(t, 0, first.Tokens[0].TrackerCount)
}
