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

// NotificationModel handles the mapping from notified messages to notification messages.
type NotificationModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewNotification creates a new notification model instance.
func NewNotification(db *bun.DB, logger *zap.Logger) *NotificationModel {
	return &NotificationModel{
		db:     db,
		logger: logger.Named("db_reaction_notification"),
	}
}

// CreateTable creates the notification mapping table if it does not exist.
func (m *NotificationModel) CreateTable(ctx context.Context) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewCreateTable().
			Model((*types.ReactionNotification)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create reaction_notifications table: %w", err)
		}
		return nil
	})
}

// Get returns the notification posted for a message and pattern.
func (m *NotificationModel) Get(
	ctx context.Context, guildID uint64, pattern string, messageID uint64,
) (mo.Option[*types.ReactionNotification], error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (mo.Option[*types.ReactionNotification], error) {
		var notification types.ReactionNotification
		err := m.db.NewSelect().
			Model(&notification).
			Where("guild_id = ?", guildID).
			Where("pattern = ?", pattern).
			Where("message_id = ?", messageID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*types.ReactionNotification](), nil
		}
		if err != nil {
			return mo.None[*types.ReactionNotification](), fmt.Errorf("failed to get notification: %w", err)
		}
		return mo.Some(&notification), nil
	})
}

// Insert stores a new mapping. Returns false when one already exists.
func (m *NotificationModel) Insert(ctx context.Context, notification *types.ReactionNotification) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewInsert().
			Model(notification).
			On("CONFLICT (guild_id, pattern, message_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to insert notification: %w", err)
		}
		return affected(result), nil
	})
}

// UpdateCount records the latest count shown by a notification.
func (m *NotificationModel) UpdateCount(
	ctx context.Context, guildID uint64, pattern string, messageID uint64, count int,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.ReactionNotification)(nil)).
			Set("count = ?", count).
			Set("updated_at = ?", time.Now()).
			Where("guild_id = ?", guildID).
			Where("pattern = ?", pattern).
			Where("message_id = ?", messageID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update notification count: %w", err)
		}
		return nil
	})
}
