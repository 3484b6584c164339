package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/robalyx/neurobot/internal/database/dbretry"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/samber/mo"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// TranslationModel handles relayed translation mappings.
type TranslationModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTranslation creates a new translation model instance.
func NewTranslation(db *bun.DB, logger *zap.Logger) *TranslationModel {
	return &TranslationModel{
		db:     db,
		logger: logger.Named("db_translation"),
	}
}

// CreateTable creates the translation table if it does not exist.
func (m *TranslationModel) CreateTable(ctx context.Context) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewCreateTable().
			Model((*types.Translation)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create translations table: %w", err)
		}
		return nil
	})
}

// Get returns the relay mapping of a source message.
func (m *TranslationModel) Get(ctx context.Context, messageID uint64) (mo.Option[*types.Translation], error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (mo.Option[*types.Translation], error) {
		var translation types.Translation
		err := m.db.NewSelect().
			Model(&translation).
			Where("message_id = ?", messageID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*types.Translation](), nil
		}
		if err != nil {
			return mo.None[*types.Translation](), fmt.Errorf("failed to get translation: %w", err)
		}
		return mo.Some(&translation), nil
	})
}

// Insert stores a relay mapping.
func (m *TranslationModel) Insert(ctx context.Context, translation *types.Translation) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(translation).
			On("CONFLICT (message_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert translation: %w", err)
		}
		return nil
	})
}

// IncrementEdits bumps the edit counter and returns the new value.
func (m *TranslationModel) IncrementEdits(ctx context.Context, messageID uint64) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		var edits int
		err := m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewUpdate().
				Model((*types.Translation)(nil)).
				Set("edits = edits + 1").
				Where("message_id = ?", messageID).
				Exec(ctx); err != nil {
				return err
			}

			return tx.NewSelect().
				Model((*types.Translation)(nil)).
				Column("edits").
				Where("message_id = ?", messageID).
				Scan(ctx, &edits)
		})
		if err != nil {
			return 0, fmt.Errorf("failed to increment translation edits: %w", err)
		}
		return edits, nil
	})
}
