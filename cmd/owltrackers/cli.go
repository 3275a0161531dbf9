package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/owltrackers/extension/internal/api"
	"github.com/owltrackers/extension/internal/config"
	"github.com/owltrackers/extension/internal/database"
	"github.com/owltrackers/extension/internal/handlers"
	"github.com/owltrackers/extension/internal/model"
	"github.com/owltrackers/extension/internal/storage/memory"
	"github.com/owltrackers/extension/pkg/core"
)

// shutdownTimeout bounds the export upload and telemetry flush on exit
const shutdownTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	var configDir string
	var a *app

	root := &cobra.Command{
		Use:          ServiceName,
		Short:        "Owl Trackers overlay layout and sync engine",
		Version:      BuildVersion,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a = newApp(configDir)
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.close(ctx)
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing "+config.FileName)

	current := func() *app { return a }
	root.AddCommand(newRunCmd(current))
	root.AddCommand(newDemoCmd(current))
	root.AddCommand(newHealthcheckCmd(current))
	root.AddCommand(newUploadCmd(current))
	root.AddCommand(newBackupsCmd(current))
	return root
}

func newRunCmd(current func() *app) *cobra.Command {
	var noStdin bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Follow the configured scene and answer UI commands read from stdin",
		Long: `Follows the scene held by the configured storage backend and keeps tracker
overlays in sync until interrupted. Every stdin line is a JSON command such as
{"command":":TRACKER:ADD:","args":["token-id","value-max"]}; replies are
written to stdout one JSON object per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			ctx := cmd.Context()

			storageCfg := config.GetStorageConfig()
			if storageCfg.Type == "websocket" {
				a.checkHostStatus(ctx)
			}
			backend, err := a.createStorageBackend(storageCfg)
			if err != nil {
				return err
			}
			e, err := a.startEngine(ctx, backend)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := e.close(closeCtx); err != nil {
					a.logger.Error("Failed to shut down cleanly", "error", err)
				}
			}()

			a.logger.Info("Engine started", "storage", storageCfg.Type, "pluginId", e.pluginID)
			if !noStdin {
				if err := e.serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			<-ctx.Done()
			a.logger.Info("Shutting down")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noStdin, "no-stdin", false, "do not read UI commands from stdin")
	return cmd
}

func newDemoCmd(current func() *app) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted tracker session against an in-memory scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			storageCfg := config.GetStorageConfig()
			if outputDir != "" {
				storageCfg.Memory.OutputDir = outputDir
			}

			start := time.Now()
			summary, err := a.runDemo(cmd.Context(), storageCfg.Memory)
			if err != nil {
				return err
			}
			a.logger.Info("Demo finished", "duration", time.Since(start))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "write the scene export here instead of storage.memory.outputDir")
	return cmd
}

// demoSummary is printed at the end of the demo
type demoSummary struct {
	Passes     int                   `json:"passes"`
	LastPass   model.RefreshPass     `json:"lastPass"`
	Overlays   int                   `json:"overlays"`
	Stats      memory.Stats          `json:"stats"`
	Trackers   []core.Tracker        `json:"trackers"`
	Settings   handlers.SettingsView `json:"settings"`
	ExportPath string                `json:"exportPath,omitempty"`
}

func demoTokens(pluginID string) ([]core.Token, error) {
	trackers, err := core.EncodeTrackers([]core.Tracker{
		{ID: "demo-hp", Color: 2, Payload: core.Bar{Value: 12, Max: 20}},
		{ID: "demo-ac", Color: 5, Payload: core.Bubble{Value: 15}},
	})
	if err != nil {
		return nil, err
	}

	base := func(id, name string, layer core.Layer, x float64) core.Token {
		return core.Token{
			ID:       id,
			Name:     name,
			Type:     core.ItemImage,
			Layer:    layer,
			Position: core.Vec2{X: x, Y: 300},
			Scale:    core.Vec2{X: 1, Y: 1},
			Visible:  true,
			Image:    core.ImageContent{Width: 300, Height: 300},
			Grid:     core.ImageGrid{DPI: 300, Offset: core.Vec2{X: 150, Y: 150}},
			Metadata: core.Metadata{},
		}
	}

	hero := base("demo-hero", "Hero", core.LayerCharacter, 300)
	hero.Metadata[core.PluginKey(pluginID, core.TrackerMetadataID)] = trackers
	return []core.Token{
		hero,
		base("demo-wolf", "Wolf", core.LayerMount, 700),
		base("demo-tree", "Tree", core.LayerProp, 1100),
	}, nil
}

// runDemo opens a seeded scene, then edits trackers the way the UI would
func (a *app) runDemo(ctx context.Context, memCfg config.MemoryConfig) (demoSummary, error) {
	var summary demoSummary

	backend := memory.New(memCfg)
	tokens, err := demoTokens(memCfg.PluginID)
	if err != nil {
		return summary, err
	}
	backend.SetTokens(tokens)

	e, err := a.startEngine(ctx, backend)
	if err != nil {
		return summary, err
	}
	closed := false
	defer func() {
		if closed {
			return
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.close(closeCtx); err != nil {
			a.logger.Error("Failed to shut down cleanly", "error", err)
		}
	}()

	backend.SetSceneReady(true)

	added, err := e.command(handlers.CmdTrackerAdd, "demo-wolf", string(core.VariantValueMax))
	if err != nil {
		return summary, err
	}
	wolfBar, ok := added.(core.Tracker)
	if !ok {
		return summary, fmt.Errorf("unexpected add result %T", added)
	}

	script := []struct {
		command string
		args    []string
	}{
		{handlers.CmdTrackerUpdate, []string{"demo-wolf", wolfBar.ID, "name", "HP"}},
		{handlers.CmdTrackerUpdate, []string{"demo-wolf", wolfBar.ID, "max", "30"}},
		{handlers.CmdTrackerUpdate, []string{"demo-wolf", wolfBar.ID, "value", "+25"}},
		{handlers.CmdTrackerUpdate, []string{"demo-hero", "demo-hp", "value", "-5"}},
		{handlers.CmdTrackerAdd, []string{"demo-hero", string(core.VariantCheckbox)}},
		{handlers.CmdTrackerToggleMath, []string{"demo-hero", "demo-ac"}},
		{handlers.CmdTrackerHide, []string{"demo-wolf", "true"}},
		{handlers.CmdSettingsSet, []string{core.VerticalOffsetKey, "10"}},
		{handlers.CmdSegmentsSet, []string{`[["HP", 4]]`}},
		{handlers.CmdTrackerAdd, []string{"demo-tree", string(core.VariantValue)}},
	}
	for _, step := range script {
		if _, err := e.command(step.command, step.args...); err != nil {
			return summary, fmt.Errorf("%s %v: %w", step.command, step.args, err)
		}
	}

	view, err := e.command(handlers.CmdSettingsGet)
	if err != nil {
		return summary, err
	}
	summary.Settings, _ = view.(handlers.SettingsView)

	store, err := e.commands.Store(ctx, "demo-hero")
	if err != nil {
		return summary, err
	}
	summary.Trackers = store.Trackers()

	overlays, err := backend.Overlays(ctx)
	if err != nil {
		return summary, err
	}
	summary.Overlays = len(overlays)
	summary.Stats = backend.Stats()
	summary.Passes = e.worker.PassCount()
	summary.LastPass = e.worker.LastPass()

	// closing writes the export when an output directory is set
	closed = true
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.close(closeCtx); err != nil {
		return summary, err
	}
	summary.ExportPath = backend.GetExportedFilePath()
	return summary, nil
}

func newHealthcheckCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check whether the scene host is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !current().checkHostStatus(cmd.Context()) {
				return errors.New("scene host is offline")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "online")
			return nil
		},
	}
}

func newUploadCmd(current func() *app) *cobra.Command {
	var meta api.UploadMetadata

	cmd := &cobra.Command{
		Use:   "upload <export-file>",
		Short: "Upload a scene export to the host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := config.GetHostConfig()
			if meta.PluginID == "" {
				meta.PluginID = viper.GetString("plugin.id")
			}
			if err := api.New(host.URL, host.APIKey).UploadScene(cmd.Context(), args[0], meta); err != nil {
				return err
			}
			current().logger.Info("Uploaded scene export", "path", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&meta.Role, "role", string(core.RoleGM), "role the export was taken as")
	cmd.Flags().StringVar(&meta.PluginID, "plugin-id", "", "metadata namespace, defaults to plugin.id")
	cmd.Flags().IntVar(&meta.TokenCount, "tokens", 0, "number of tokens in the export")
	cmd.Flags().IntVar(&meta.OverlayCount, "overlays", 0, "number of overlays in the export")
	return cmd
}

// backupInfo describes one SQLite dump
type backupInfo struct {
	Path   string `json:"path"`
	Passes int64  `json:"passes"`
	Tokens int64  `json:"tokens"`
	Error  string `json:"error,omitempty"`
}

func newBackupsCmd(current func() *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List SQLite scene dumps with their token and refresh pass counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = viper.GetString("logsDir")
			}
			infos, err := listBackups(dir)
			if err != nil {
				return err
			}
			current().logger.Debug("Listed backups", "dir", dir, "count", len(infos))
			return writeJSONLines(cmd.OutOrStdout(), infos)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to scan, defaults to logsDir")
	return cmd
}

func listBackups(dir string) ([]backupInfo, error) {
	paths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	infos := make([]backupInfo, 0, len(paths))
	for _, path := range paths {
		info := backupInfo{Path: path}
		if err := countBackup(path, &info); err != nil {
			info.Error = err.Error()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func countBackup(path string, info *backupInfo) error {
	db, err := database.GetSqliteDBStandalone(path)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.Model(&model.RefreshPass{}).Count(&info.Passes).Error; err != nil {
		return err
	}
	return db.Model(&model.Token{}).Count(&info.Tokens).Error
}

func writeJSONLines[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}
