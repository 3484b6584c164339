package models

import (
	"context"
	"fmt"

	"github.com/robalyx/neurobot/internal/database/dbretry"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ReactionModel handles the append-only reaction log.
type ReactionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewReaction creates a new reaction model instance.
func NewReaction(db *bun.DB, logger *zap.Logger) *ReactionModel {
	return &ReactionModel{
		db:     db,
		logger: logger.Named("db_reaction"),
	}
}

// CreateTable creates the reaction log and its lookup index if they do not exist.
func (m *ReactionModel) CreateTable(ctx context.Context) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewCreateTable().
			Model((*types.Reaction)(nil)).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create reactions table: %w", err)
		}

		if _, err := m.db.NewCreateIndex().
			Model((*types.Reaction)(nil)).
			Index("reactions_guild_message_idx").
			Column("guild_id", "message_id", "emoji").
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create reactions index: %w", err)
		}

		return nil
	})
}

// Append stores a reaction log entry.
func (m *ReactionModel) Append(ctx context.Context, entry *types.Reaction) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewInsert().Model(entry).Exec(ctx); err != nil {
			return fmt.Errorf("failed to append reaction: %w", err)
		}
		return nil
	})
}

// ListForMessage returns every log entry of a message in replay order.
func (m *ReactionModel) ListForMessage(ctx context.Context, guildID, messageID uint64) ([]*types.Reaction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Reaction, error) {
		var entries []*types.Reaction
		err := m.db.NewSelect().
			Model(&entries).
			Where("guild_id = ?", guildID).
			Where("message_id = ?", messageID).
			Order("timestamp ASC", "sequence ASC", "id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list reactions: %w", err)
		}
		return entries, nil
	})
}

// reactorNet is the summed delta of one reactor.
type reactorNet struct {
	ReactorID uint64 `bun:"reactor_id"`
	Net       int    `bun:"net"`
}

// NetCount returns how many users currently have emoji on the message.
// Each reactor's deltas are summed and clamped to 0 or 1 so a lost add or a
// duplicated remove cannot push the total off.
func (m *ReactionModel) NetCount(ctx context.Context, guildID, messageID uint64, emoji string) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		var rows []reactorNet

		err := m.db.NewSelect().
			Model((*types.Reaction)(nil)).
			Column("reactor_id").
			ColumnExpr("SUM(CASE WHEN added THEN 1 ELSE -1 END) AS net").
			Where("guild_id = ?", guildID).
			Where("message_id = ?", messageID).
			Where("emoji = ?", emoji).
			Group("reactor_id").
			Scan(ctx, &rows)
		if err != nil {
			return 0, fmt.Errorf("failed to count reactions: %w", err)
		}

		total := 0
		for _, row := range rows {
			if row.Net > 0 {
				total++
			}
		}
		return total, nil
	})
}
