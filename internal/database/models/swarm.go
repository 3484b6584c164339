package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/neurobot/internal/database/dbretry"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/samber/mo"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SwarmModel handles persisted sticker streaks.
type SwarmModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewSwarm creates a new swarm model instance.
func NewSwarm(db *bun.DB, logger *zap.Logger) *SwarmModel {
	return &SwarmModel{
		db:     db,
		logger: logger.Named("db_swarm"),
	}
}

// CreateTable creates the streak table if it does not exist.
func (m *SwarmModel) CreateTable(ctx context.Context) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewCreateTable().
			Model((*types.SwarmStreak)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create swarm_streaks table: %w", err)
		}
		return nil
	})
}

// Get returns the stored streak of a guild.
func (m *SwarmModel) Get(ctx context.Context, guildID uint64) (mo.Option[*types.SwarmStreak], error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (mo.Option[*types.SwarmStreak], error) {
		var streak types.SwarmStreak
		err := m.db.NewSelect().
			Model(&streak).
			Where("guild_id = ?", guildID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*types.SwarmStreak](), nil
		}
		if err != nil {
			return mo.None[*types.SwarmStreak](), fmt.Errorf("failed to get swarm streak: %w", err)
		}
		return mo.Some(&streak), nil
	})
}

// Upsert stores the streak of a guild.
func (m *SwarmModel) Upsert(ctx context.Context, streak *types.SwarmStreak) error {
	streak.UpdatedAt = time.Now()

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(streak).
			On("CONFLICT (guild_id) DO UPDATE").
			Set("count = EXCLUDED.count").
			Set("sticker_id = EXCLUDED.sticker_id").
			Set("sticker_name = EXCLUDED.sticker_name").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert swarm streak: %w", err)
		}

		m.logger.Debug("Saved swarm streak",
			zap.Uint64("guildID", streak.GuildID),
			zap.Int("count", streak.Count))

		return nil
	})
}
