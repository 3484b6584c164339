package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/robalyx/neurobot/internal/database/dbretry"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/samber/mo"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// BanModel handles reaction ban rules.
type BanModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewBan creates a new ban model instance.
func NewBan(db *bun.DB, logger *zap.Logger) *BanModel {
	return &BanModel{
		db:     db,
		logger: logger.Named("db_reaction_ban"),
	}
}

// CreateTable creates the ban rule table if it does not exist.
func (m *BanModel) CreateTable(ctx context.Context) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewCreateTable().
			Model((*types.ReactionBan)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create reaction_bans table: %w", err)
		}
		return nil
	})
}

// Seed inserts rules that do not exist yet. Existing rules keep their stored state.
func (m *BanModel) Seed(ctx context.Context, bans []*types.ReactionBan) error {
	if len(bans) == 0 {
		return nil
	}

	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		for _, ban := range bans {
			if _, err := tx.NewInsert().
				Model(ban).
				On("CONFLICT (guild_id, pattern) DO NOTHING").
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to seed reaction ban %q: %w", ban.Pattern, err)
			}
		}
		return nil
	})
}

// ListByGuild returns every rule of a guild ordered by creation.
func (m *BanModel) ListByGuild(ctx context.Context, guildID uint64) ([]*types.ReactionBan, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ReactionBan, error) {
		var bans []*types.ReactionBan
		err := m.db.NewSelect().
			Model(&bans).
			Where("guild_id = ?", guildID).
			Order("id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list reaction bans: %w", err)
		}
		return bans, nil
	})
}

// Get returns the rule for a pattern.
func (m *BanModel) Get(ctx context.Context, guildID uint64, pattern string) (mo.Option[*types.ReactionBan], error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (mo.Option[*types.ReactionBan], error) {
		var ban types.ReactionBan
		err := m.db.NewSelect().
			Model(&ban).
			Where("guild_id = ?", guildID).
			Where("pattern = ?", pattern).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*types.ReactionBan](), nil
		}
		if err != nil {
			return mo.None[*types.ReactionBan](), fmt.Errorf("failed to get reaction ban: %w", err)
		}
		return mo.Some(&ban), nil
	})
}

// Insert adds a rule. Returns false when the pattern already exists for the guild.
func (m *BanModel) Insert(ctx context.Context, ban *types.ReactionBan) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewInsert().
			Model(ban).
			On("CONFLICT (guild_id, pattern) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to insert reaction ban: %w", err)
		}
		return affected(result), nil
	})
}

// Delete removes a rule. Returns false when nothing was removed.
func (m *BanModel) Delete(ctx context.Context, guildID uint64, pattern string) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewDelete().
			Model((*types.ReactionBan)(nil)).
			Where("guild_id = ?", guildID).
			Where("pattern = ?", pattern).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete reaction ban: %w", err)
		}
		return affected(result), nil
	})
}

// SetEnabled toggles a rule. Returns false when no rule in the opposite state exists.
func (m *BanModel) SetEnabled(ctx context.Context, guildID uint64, pattern string, enabled bool) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewUpdate().
			Model((*types.ReactionBan)(nil)).
			Set("enabled = ?", enabled).
			Where("guild_id = ?", guildID).
			Where("pattern = ?", pattern).
			Where("enabled = ?", !enabled).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to update reaction ban: %w", err)
		}
		return affected(result), nil
	})
}

// Search returns rules whose pattern or name contains query.
// When enabled is set only rules in that state are returned.
func (m *BanModel) Search(
	ctx context.Context, guildID uint64, query string, enabled mo.Option[bool], limit int,
) ([]*types.ReactionBan, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ReactionBan, error) {
		like := "%" + escapeLike(query) + "%"

		var bans []*types.ReactionBan
		q := m.db.NewSelect().
			Model(&bans).
			Where("guild_id = ?", guildID).
			WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("LOWER(pattern) LIKE LOWER(?) ESCAPE '\\'", like).
					WhereOr("LOWER(name) LIKE LOWER(?) ESCAPE '\\'", like)
			}).
			Order("id ASC").
			Limit(limit)

		if value, ok := enabled.Get(); ok {
			q = q.Where("enabled = ?", value)
		}

		if err := q.Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to search reaction bans: %w", err)
		}
		return bans, nil
	})
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// affected reports whether a statement changed at least one row.
func affected(result sql.Result) bool {
	n, err := result.RowsAffected()
	return err == nil && n > 0
}
