// Package reactions logs every reaction, enforces emoji ban rules and raises
// notifications when an emoji reaches a threshold on a message.
package reactions

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/database"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/scheduler"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

// DrainInterval is how often one notification edit is applied.
const DrainInterval = time.Second

// Feature is the reaction engine.
type Feature struct {
	config  *config.Config
	gateway gateway.Gateway
	db      database.Client
	clock   *scheduler.Scheduler
	cron    *scheduler.Cron
	bans    *banCache
	groups  map[snowflake.ID][]group
	queue   *EditQueue
	logger  *zap.Logger
}

// New creates the reaction engine.
func New(deps feature.Deps) *Feature {
	logger := deps.Logger.Named("reactions")
	f := &Feature{
		config:  deps.Config,
		gateway: deps.Gateway,
		db:      deps.DB,
		clock:   deps.Scheduler,
		cron:    deps.Cron,
		bans:    newBanCache(),
		groups:  make(map[snowflake.ID][]group),
		queue:   NewEditQueue(deps.Gateway, deps.DB.Model().Notification(), deps.DB.Model().Reaction(), logger),
		logger:  logger,
	}

	for _, server := range deps.Config.Servers {
		if server.Reactions.Enabled {
			f.groups[snowflake.ID(server.GuildID)] = f.compileGroups(server.Reactions.Notifications.Groups)
		}
	}
	return f
}

func (f *Feature) Name() string { return "reactions" }

// Queue returns the notification edit queue.
func (f *Feature) Queue() *EditQueue { return f.queue }

// Init creates the tables, seeds configured ban rules, loads the rule cache
// and starts draining the edit queue.
func (f *Feature) Init(ctx context.Context) error {
	repo := f.db.Model()
	if err := repo.Reaction().CreateTable(ctx); err != nil {
		return err
	}
	if err := repo.Ban().CreateTable(ctx); err != nil {
		return err
	}
	if err := repo.Notification().CreateTable(ctx); err != nil {
		return err
	}

	for _, server := range f.config.Servers {
		if !server.Reactions.Enabled {
			continue
		}
		guildID := snowflake.ID(server.GuildID)

		seeds := make([]*types.ReactionBan, 0, len(server.Reactions.Bans))
		for _, ban := range server.Reactions.Bans {
			seeds = append(seeds, &types.ReactionBan{
				GuildID:         server.GuildID,
				Pattern:         ban.Pattern,
				Name:            ban.Name,
				Enabled:         ban.Enabled,
				Channels:        ban.Channels,
				IgnoredChannels: ban.IgnoredChannels,
			})
		}
		if err := repo.Ban().Seed(ctx, seeds); err != nil {
			return err
		}

		if err := f.reload(ctx, guildID); err != nil {
			return err
		}
	}

	if f.cron != nil {
		if err := f.cron.Every("reaction-notification-edits", DrainInterval, func() {
			f.queue.Drain(ctx)
		}); err != nil {
			return fmt.Errorf("failed to schedule notification edits: %w", err)
		}
	}

	return nil
}

func (f *Feature) compileGroups(groups []config.NotificationGroup) []group {
	compiled := make([]group, 0, len(groups))
	for _, g := range groups {
		re, err := CompilePattern(g.Pattern)
		if err != nil {
			f.logger.Warn("Skipping notification group with invalid pattern",
				zap.String("group", g.Name),
				zap.Error(err))
			continue
		}
		compiled = append(compiled, group{NotificationGroup: g, re: re})
	}
	return compiled
}

// reload replaces a guild's cached rules with the stored ones.
func (f *Feature) reload(ctx context.Context, guildID snowflake.ID) error {
	bans, err := f.db.Model().Ban().ListByGuild(ctx, uint64(guildID))
	if err != nil {
		return err
	}

	for pattern, err := range f.bans.store(guildID, bans) {
		f.logger.Warn("Skipping reaction ban with invalid pattern",
			zap.Uint64("guildID", uint64(guildID)),
			zap.String("pattern", pattern),
			zap.Error(err))
	}
	return nil
}

// server returns the guild settings when the reaction engine is enabled there.
func (f *Feature) server(guildID snowflake.ID) (*config.Server, bool) {
	server, ok := f.config.Server(guildID).Get()
	if !ok || !server.Reactions.Enabled {
		return nil, false
	}
	return server, true
}

// OnReaction logs the reaction and, for additions, applies bans and notifications.
func (f *Feature) OnReaction(ctx context.Context, reaction gateway.Reaction) error {
	server, ok := f.server(reaction.GuildID)
	if !ok {
		return nil
	}

	received := reaction.Received
	if received.IsZero() {
		received = f.clock.Now()
	}

	key := reaction.Emoji.Key()
	err := f.db.Model().Reaction().Append(ctx, &types.Reaction{
		GuildID:   uint64(reaction.GuildID),
		ChannelID: uint64(reaction.ChannelID),
		MessageID: uint64(reaction.MessageID),
		ReactorID: uint64(reaction.UserID),
		Emoji:     key,
		Timestamp: received.UnixMilli(),
		Sequence:  reaction.Order,
		Added:     reaction.Added,
	})
	if err != nil {
		return err
	}

	if !reaction.Added {
		return nil
	}

	f.enforceBan(ctx, server, reaction, key)
	f.notify(ctx, server, reaction, key)
	return nil
}

// enforceBan removes the reaction when an enabled rule matches it.
func (f *Feature) enforceBan(ctx context.Context, server *config.Server, reaction gateway.Reaction, key string) {
	ban, ok := f.bans.match(reaction.GuildID, reaction.ChannelID, server.Reactions.ChannelScope, key)
	if !ok {
		return
	}

	logger := f.logger.With(
		zap.String("rule", ban.Name),
		zap.String("emoji", key),
		zap.Uint64("messageID", uint64(reaction.MessageID)),
		zap.Uint64("userID", uint64(reaction.UserID)))

	message, err := f.gateway.FetchMessage(ctx, reaction.ChannelID, reaction.MessageID)
	if err != nil || message.IsAbsent() {
		logger.Warn("Failed to fetch message for banned reaction", zap.Error(err))
		return
	}

	user, err := f.gateway.FetchUser(ctx, reaction.UserID)
	if err != nil || user.IsAbsent() {
		logger.Warn("Failed to resolve user for banned reaction", zap.Error(err))
		return
	}

	err = f.gateway.RemoveUserReaction(ctx, reaction.ChannelID, reaction.MessageID, reaction.Emoji.APIString(), reaction.UserID)
	if err != nil {
		logger.Warn("Failed to remove banned reaction", zap.Error(err))
		return
	}

	logger.Info("Removed banned reaction")
}
