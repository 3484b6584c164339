package database

import (
	"context"
	"fmt"

	"github.com/robalyx/neurobot/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	reactions     *models.ReactionModel
	bans          *models.BanModel
	notifications *models.NotificationModel
	swarm         *models.SwarmModel
	translations  *models.TranslationModel
}

// NewRepository creates a new repository with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		reactions:     models.NewReaction(db, logger),
		bans:          models.NewBan(db, logger),
		notifications: models.NewNotification(db, logger),
		swarm:         models.NewSwarm(db, logger),
		translations:  models.NewTranslation(db, logger),
	}
}

// Reaction returns the append-only reaction log model.
func (r *Repository) Reaction() *models.ReactionModel {
	return r.reactions
}

// Ban returns the reaction ban rule model.
func (r *Repository) Ban() *models.BanModel {
	return r.bans
}

// Notification returns the reaction notification mapping model.
func (r *Repository) Notification() *models.NotificationModel {
	return r.notifications
}

// Swarm returns the sticker streak model.
func (r *Repository) Swarm() *models.SwarmModel {
	return r.swarm
}

// Translation returns the relay mapping model.
func (r *Repository) Translation() *models.TranslationModel {
	return r.translations
}

// CreateTables creates every table. Features create their own tables at init;
// this is used by tools and tests that need the full schema up front.
func (r *Repository) CreateTables(ctx context.Context) error {
	creators := []interface{ CreateTable(context.Context) error }{
		r.reactions, r.bans, r.notifications, r.swarm, r.translations,
	}
	for _, creator := range creators {
		if err := creator.CreateTable(ctx); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}
