package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	v1 "github.com/owltrackers/extension/internal/storage/memory/export/v1"
)

// now is replaced in tests
var now = time.Now

// Export writes the scene to the output directory and returns the file path
func (b *Backend) Export() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.exportJSON(); err != nil {
		return "", err
	}
	return b.lastExportPath, nil
}

// GetExportedFilePath returns the path of the last export, or "" if none
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// exportJSON writes the scene to a (gzipped) JSON file. Callers hold b.mu.
func (b *Backend) exportJSON() error {
	ts := now()
	export := v1.Build(v1.SceneData{
		PluginID: b.cfg.PluginID,
		Role:     b.role,
		GridDPI:  b.gridDPI,
		Metadata: b.metadata,
		Tokens:   b.tokens,
		Overlays: b.overlays,
	}, ts)

	filename := exportFilename(ts, b.cfg.CompressOutput)
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func exportFilename(ts time.Time, compress bool) string {
	name := "scene_" + ts.Format("20060102_150405")
	if compress {
		return name + ".json.gz"
	}
	return name + ".json"
}

func writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gzWriter.Close()
}
