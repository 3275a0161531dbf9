package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/owltrackers/extension/internal/api"
	"github.com/owltrackers/extension/internal/config"
	"github.com/owltrackers/extension/internal/model"
	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/internal/storage/memory"
	pgstorage "github.com/owltrackers/extension/internal/storage/postgres"
	sqlitestorage "github.com/owltrackers/extension/internal/storage/sqlite"
	wsstorage "github.com/owltrackers/extension/internal/storage/websocket"
)

// dbProvider is implemented by the GORM-backed backends; the monitor writes
// refresh pass rows into the same database
type dbProvider interface {
	DB() *gorm.DB
}

// seedScene is the scene row a fresh GORM database starts with
func seedScene(cfg config.StorageConfig) model.Scene {
	return model.Scene{
		Role:    cfg.Memory.Role,
		GridDPI: cfg.Memory.GridDPI,
	}
}

func (a *app) createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	batchSize := config.GetRefreshConfig().BatchSize

	switch storageCfg.Type {
	case "postgres":
		a.logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			LogManager:       a.logManager,
			Logger:           a.zlog,
			Seed:             seedScene(storageCfg),
			BatchSize:        batchSize,
			FallbackDumpPath: a.sessionDBPath("fallback"),
		}), nil

	case "sqlite":
		dumpPath := storageCfg.SQLite.DumpPath
		if dumpPath == "" {
			dumpPath = a.sessionDBPath("")
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
			BatchSize:    batchSize,
			Seed:         seedScene(storageCfg),
		}, a.logManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		a.logger.Info("SQLite storage backend initialized", "dumpPath", dumpPath)
		return backend, nil

	case "websocket":
		host := config.GetHostConfig()
		wsURL := wsstorage.HTTPToWS(host.URL) + "/api"
		backend, err := wsstorage.New(wsstorage.Config{
			URL:      wsURL,
			Secret:   host.APIKey,
			PluginID: storageCfg.Memory.PluginID,
			Mirror:   storageCfg.Memory,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create WebSocket backend: %w", err)
		}
		a.logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return backend, nil

	case "memory", "":
		a.logger.Info("Memory storage backend initialized")
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// sessionDBPath names a SQLite file in logsDir for this session
func (a *app) sessionDBPath(suffix string) string {
	name := fmt.Sprintf("%s_%s", ServiceName, a.sessionStart.Format(sessionFormat))
	if suffix != "" {
		name += "_" + suffix
	}
	return filepath.Join(viper.GetString("logsDir"), name+".db")
}

// checkHostStatus logs whether the scene host answers its healthcheck
func (a *app) checkHostStatus(ctx context.Context) bool {
	host := config.GetHostConfig()
	if err := api.New(host.URL, host.APIKey).Healthcheck(ctx); err != nil {
		a.logger.Info("Scene host is offline", "url", host.URL, "error", err)
		return false
	}
	a.logger.Info("Scene host is online", "url", host.URL)
	return true
}

// exportMetadata describes the scene for the upload. It runs before the
// backend is closed.
func exportMetadata(ctx context.Context, backend storage.Backend, pluginID string) api.UploadMetadata {
	meta := api.UploadMetadata{PluginID: pluginID}
	if tokens, err := backend.Tokens(ctx); err == nil {
		meta.TokenCount = len(tokens)
	}
	if role, err := backend.Role(ctx); err == nil {
		meta.Role = string(role)
	}
	if reader, ok := backend.(storage.OverlayReader); ok {
		if overlays, err := reader.Overlays(ctx); err == nil {
			meta.OverlayCount = len(overlays)
		}
	}
	return meta
}

// uploadExport sends the closed backend's scene dump to the host when an API
// key is configured
func (a *app) uploadExport(ctx context.Context, backend storage.Backend, meta api.UploadMetadata) {
	exp, ok := backend.(storage.Exportable)
	if !ok {
		return
	}
	path := exp.GetExportedFilePath()
	host := config.GetHostConfig()
	if path == "" || host.APIKey == "" {
		return
	}

	if err := api.New(host.URL, host.APIKey).UploadScene(ctx, path, meta); err != nil {
		a.logger.Error("Failed to upload scene export", "path", path, "error", err)
		return
	}
	a.logger.Info("Uploaded scene export", "path", path)
}
