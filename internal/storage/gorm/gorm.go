// Package gormstorage implements storage.Backend on any GORM dialect. The
// scene row, tokens and overlays are tables; metadata bags are JSON columns.
package gormstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/owltrackers/extension/internal/database"
	"github.com/owltrackers/extension/internal/logging"
	"github.com/owltrackers/extension/internal/model"
	"github.com/owltrackers/extension/internal/model/convert"
	"github.com/owltrackers/extension/internal/queue"
	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultBatchSize bounds the rows written per INSERT
const DefaultBatchSize = 100

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	// Seed is the scene row written on first Init
	Seed model.Scene
	// BatchSize bounds rows per INSERT; DefaultBatchSize when zero
	BatchSize int
}

// Backend implements storage.Backend on a GORM database.
type Backend struct {
	storage.Hub

	deps Dependencies
	// serializes read-modify-write cycles on JSON columns
	writeMu sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.BatchSize < 1 {
		deps.BatchSize = DefaultBatchSize
	}
	if deps.Seed.Role == "" {
		deps.Seed.Role = string(core.RoleGM)
	}
	return &Backend{deps: deps}
}

// UseDB sets the connection for backends that open it lazily. Call it before Init.
func (b *Backend) UseDB(db *gorm.DB) {
	b.deps.DB = db
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and seeds the scene row.
func (b *Backend) Init(ctx context.Context) error {
	if b.deps.DB == nil {
		return errors.New("gorm backend has no database")
	}
	if err := database.Migrate(b.deps.DB.WithContext(ctx), b.deps.Seed); err != nil {
		return err
	}
	b.log("gorm:Init", "Scene schema ready", "INFO")
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) log(fn, msg, level string) {
	if b.deps.LogManager != nil {
		b.deps.LogManager.WriteLog(fn, msg, level)
	}
}

func (b *Backend) scene(ctx context.Context) (model.Scene, error) {
	var s model.Scene
	if err := b.deps.DB.WithContext(ctx).First(&s, model.SceneID).Error; err != nil {
		return s, fmt.Errorf("failed to load scene: %w", err)
	}
	return s, nil
}

// IsSceneReady reports the scene row's ready flag.
func (b *Backend) IsSceneReady(ctx context.Context) (bool, error) {
	s, err := b.scene(ctx)
	if err != nil {
		return false, err
	}
	return s.Ready, nil
}

func (b *Backend) requireReady(ctx context.Context) error {
	ready, err := b.IsSceneReady(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return storage.ErrSceneNotReady
	}
	return nil
}

// Tokens returns the scene's tokens in host order.
func (b *Backend) Tokens(ctx context.Context) ([]core.Token, error) {
	if err := b.requireReady(ctx); err != nil {
		return nil, err
	}
	return b.loadTokens(ctx)
}

func (b *Backend) loadTokens(ctx context.Context) ([]core.Token, error) {
	var rows []model.Token
	if err := b.deps.DB.WithContext(ctx).Order("sort_order ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	out := make([]core.Token, 0, len(rows))
	for _, row := range rows {
		tok, err := convert.TokenToCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, nil
}

// Role returns the current user's role.
func (b *Backend) Role(ctx context.Context) (core.Role, error) {
	s, err := b.scene(ctx)
	if err != nil {
		return "", err
	}
	return core.Role(s.Role), nil
}

// GridDPI returns the scene grid resolution.
func (b *Backend) GridDPI(ctx context.Context) (float64, error) {
	s, err := b.scene(ctx)
	if err != nil {
		return 0, err
	}
	return s.GridDPI, nil
}

// SceneMetadata returns the scene metadata bag.
func (b *Backend) SceneMetadata(ctx context.Context) (core.Metadata, error) {
	s, err := b.scene(ctx)
	if err != nil {
		return nil, err
	}
	if !s.Ready {
		return nil, storage.ErrSceneNotReady
	}
	return convert.JSONToMetadata(s.Metadata)
}

// SetSceneMetadata merges partial into the scene metadata and notifies listeners.
func (b *Backend) SetSceneMetadata(ctx context.Context, partial core.Metadata) error {
	b.writeMu.Lock()
	var merged core.Metadata
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s model.Scene
		if err := tx.First(&s, model.SceneID).Error; err != nil {
			return fmt.Errorf("failed to load scene: %w", err)
		}
		if !s.Ready {
			return storage.ErrSceneNotReady
		}
		current, err := convert.JSONToMetadata(s.Metadata)
		if err != nil {
			return err
		}
		merged = current.Merge(partial)
		data, err := convert.MetadataToJSON(merged)
		if err != nil {
			return err
		}
		return tx.Model(&model.Scene{}).Where("id = ?", model.SceneID).Update("metadata", data).Error
	})
	b.writeMu.Unlock()
	if err != nil {
		return err
	}

	b.EmitSceneMetadata(merged)
	return nil
}

// UpdateTokenMetadata merges partial into one token's metadata and
// notifies item listeners.
func (b *Backend) UpdateTokenMetadata(ctx context.Context, tokenID string, partial core.Metadata) error {
	b.writeMu.Lock()
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s model.Scene
		if err := tx.First(&s, model.SceneID).Error; err != nil {
			return fmt.Errorf("failed to load scene: %w", err)
		}
		if !s.Ready {
			return storage.ErrSceneNotReady
		}

		var row model.Token
		err := tx.Where("token_id = ?", tokenID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", storage.ErrTokenNotFound, tokenID)
		}
		if err != nil {
			return fmt.Errorf("failed to load token %s: %w", tokenID, err)
		}
		current, err := convert.JSONToMetadata(row.Metadata)
		if err != nil {
			return err
		}
		data, err := convert.MetadataToJSON(current.Merge(partial))
		if err != nil {
			return err
		}
		return tx.Model(&model.Token{}).Where("token_id = ?", tokenID).Update("metadata", data).Error
	})
	b.writeMu.Unlock()
	if err != nil {
		return err
	}

	return b.emitTokens(ctx)
}

// AddOverlays upserts overlays by id in batches.
func (b *Backend) AddOverlays(ctx context.Context, overlays []core.Overlay) error {
	if err := b.requireReady(ctx); err != nil {
		return err
	}
	if len(overlays) == 0 {
		return nil
	}

	rows := make([]model.Overlay, 0, len(overlays))
	for _, o := range overlays {
		row, err := convert.CoreToOverlay(o)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "overlay_id"}},
			UpdateAll: true,
		}).CreateInBatches(&rows, b.deps.BatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to add overlays: %w", err)
	}
	return nil
}

// DeleteOverlays removes overlays by id; unknown ids are ignored.
func (b *Backend) DeleteOverlays(ctx context.Context, ids []string) error {
	if err := b.requireReady(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range queue.Chunk(ids, b.deps.BatchSize) {
			if err := tx.Where("overlay_id IN ?", chunk).Delete(&model.Overlay{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete overlays: %w", err)
	}
	return nil
}

// Overlays lists every stored overlay ordered by id.
func (b *Backend) Overlays(ctx context.Context) ([]core.Overlay, error) {
	var rows []model.Overlay
	if err := b.deps.DB.WithContext(ctx).Order("overlay_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load overlays: %w", err)
	}
	out := make([]core.Overlay, 0, len(rows))
	for _, row := range rows {
		o, err := convert.OverlayToCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// OverlaysFor lists the overlays attached to one token.
func (b *Backend) OverlaysFor(ctx context.Context, tokenID string) ([]core.Overlay, error) {
	var rows []model.Overlay
	err := b.deps.DB.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("overlay_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load overlays for %s: %w", tokenID, err)
	}
	out := make([]core.Overlay, 0, len(rows))
	for _, row := range rows {
		o, err := convert.OverlayToCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// SetSceneReady updates the ready flag and notifies listeners on change.
func (b *Backend) SetSceneReady(ctx context.Context, ready bool) error {
	changed, err := b.updateScene(ctx, "ready", ready, func(s model.Scene) bool { return s.Ready != ready })
	if err != nil || !changed {
		return err
	}
	b.EmitSceneReady(ready)
	return nil
}

// SetRole updates the role and notifies listeners on change.
func (b *Backend) SetRole(ctx context.Context, role core.Role) error {
	changed, err := b.updateScene(ctx, "role", string(role), func(s model.Scene) bool { return s.Role != string(role) })
	if err != nil || !changed {
		return err
	}
	b.EmitRole(role)
	return nil
}

func (b *Backend) updateScene(ctx context.Context, column string, value any, differs func(model.Scene) bool) (bool, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	changed := false
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s model.Scene
		if err := tx.First(&s, model.SceneID).Error; err != nil {
			return fmt.Errorf("failed to load scene: %w", err)
		}
		if !differs(s) {
			return nil
		}
		changed = true
		return tx.Model(&model.Scene{}).Where("id = ?", model.SceneID).Update(column, value).Error
	})
	return changed, err
}

// PutToken inserts a token at the end of the scene order, or replaces it in
// place, then notifies item listeners.
func (b *Backend) PutToken(ctx context.Context, t core.Token) error {
	b.writeMu.Lock()
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Token
		order := 0
		err := tx.Select("sort_order").Where("token_id = ?", t.ID).First(&existing).Error
		switch {
		case err == nil:
			order = existing.SortOrder
		case errors.Is(err, gorm.ErrRecordNotFound):
			var maxOrder sql.NullInt64
			if err := tx.Model(&model.Token{}).Select("MAX(sort_order)").Row().Scan(&maxOrder); err != nil {
				return err
			}
			if maxOrder.Valid {
				order = int(maxOrder.Int64) + 1
			}
		default:
			return err
		}

		row, err := convert.CoreToToken(t, order)
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_id"}},
			UpdateAll: true,
		}).Create(&row).Error
	})
	b.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to put token %s: %w", t.ID, err)
	}
	return b.emitTokens(ctx)
}

// RemoveToken deletes a token and its attached overlays, then notifies item listeners.
func (b *Backend) RemoveToken(ctx context.Context, id string) error {
	b.writeMu.Lock()
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token_id = ?", id).Delete(&model.Overlay{}).Error; err != nil {
			return err
		}
		return tx.Where("token_id = ?", id).Delete(&model.Token{}).Error
	})
	b.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to remove token %s: %w", id, err)
	}
	return b.emitTokens(ctx)
}

func (b *Backend) emitTokens(ctx context.Context) error {
	tokens, err := b.loadTokens(ctx)
	if err != nil {
		return err
	}
	b.EmitItems(tokens)
	return nil
}
