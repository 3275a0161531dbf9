// Package postgres implements the storage.Backend interface on PostgreSQL
// through the GORM backend. Init opens its own connection when none is
// injected and falls back to an in-memory SQLite database when Postgres is
// unreachable.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/owltrackers/extension/internal/database"
	"github.com/owltrackers/extension/internal/logging"
	"github.com/owltrackers/extension/internal/model"
	gormstorage "github.com/owltrackers/extension/internal/storage/gorm"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	// Logger is used by the connection manager
	Logger    zerolog.Logger
	Seed      model.Scene
	BatchSize int
	// FallbackDumpPath receives the in-memory SQLite database on Close when
	// Postgres was unreachable. Empty disables the dump.
	FallbackDumpPath string
}

// Backend implements storage.Backend on PostgreSQL.
type Backend struct {
	*gormstorage.Backend
	deps    Dependencies
	manager *database.Manager
}

// New creates a new Postgres storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:         deps.DB,
			LogManager: deps.LogManager,
			Seed:       deps.Seed,
			BatchSize:  deps.BatchSize,
		}),
		deps: deps,
	}
}

// Init connects if needed, then migrates the schema.
func (b *Backend) Init(ctx context.Context) error {
	if b.deps.DB == nil {
		b.manager = database.NewManager(b.deps.Logger)
		b.manager.SqliteFilePath = b.deps.FallbackDumpPath
		if err := b.manager.Connect(); err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.deps.DB = b.manager.DB
		b.Backend.UseDB(b.manager.DB)
	}
	return b.Backend.Init(ctx)
}

// UsingFallback reports whether Init fell back to in-memory SQLite.
func (b *Backend) UsingFallback() bool {
	return b.manager != nil && b.manager.UsingFallback
}

// Close closes the connection when the backend opened it. A fallback
// database is dumped to disk first so the session is not lost.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.manager == nil || b.manager.SqlDB == nil {
		return nil
	}
	var dumpErr error
	if b.UsingFallback() && b.manager.SqliteFilePath != "" {
		if err := b.manager.DumpMemoryToDisk(); err != nil {
			dumpErr = fmt.Errorf("failed to dump fallback database: %w", err)
		}
	}
	return errors.Join(dumpErr, b.manager.SqlDB.Close())
}
