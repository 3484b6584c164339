// Package polls rate limits and restricts native Discord polls.
package polls

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/scheduler"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

// WarningLifetime is how long a cooldown warning stays in the channel.
const WarningLifetime = 8 * time.Second

// Feature enforces poll restrictions.
type Feature struct {
	config    *config.Config
	gateway   gateway.Gateway
	scheduler *scheduler.Scheduler
	gate      *Gate
	logger    *zap.Logger
}

// New creates the poll restriction engine.
func New(deps feature.Deps) *Feature {
	return &Feature{
		config:    deps.Config,
		gateway:   deps.Gateway,
		scheduler: deps.Scheduler,
		gate:      NewGate(),
		logger:    deps.Logger.Named("polls"),
	}
}

func (f *Feature) Name() string { return "polls" }

// Gate returns the cooldown state.
func (f *Feature) Gate() *Gate { return f.gate }

// OnMessageCreate checks every poll posted in a guild with restrictions enabled.
func (f *Feature) OnMessageCreate(ctx context.Context, msg gateway.Message) error {
	if !msg.HasPoll {
		return nil
	}
	server, ok := f.config.Server(msg.GuildID).Get()
	if !ok || !server.PollRestrictions.Enabled {
		return nil
	}
	settings := &server.PollRestrictions

	now := f.scheduler.Now()
	decision := f.gate.Check(settings, msg, now)

	logger := f.logger.With(
		zap.Uint64("guildID", uint64(msg.GuildID)),
		zap.Uint64("channelID", uint64(msg.ChannelID)),
		zap.Uint64("userID", uint64(msg.Author.ID)))

	switch decision.Verdict {
	case Bypassed:
		return nil

	case Accepted:
		f.scheduleCleanup(msg, settings, now)
		logger.Debug("Accepted poll")
		return nil

	case Forbidden:
		logger.Info("Deleting restricted poll")
		return f.gateway.DeleteMessage(ctx, msg.ChannelID, msg.ID, "[polls] Poll not allowed here")

	case UserCooldown:
		logger.Info("Deleting poll during user cooldown")
		return f.reject(ctx, msg, fmt.Sprintf("%s You can send another poll %s.",
			gateway.UserMention(msg.Author.ID), gateway.Timestamp(decision.Until, "R")))

	case ChannelCooldown:
		logger.Info("Deleting poll during channel cooldown")
		return f.reject(ctx, msg, fmt.Sprintf("%s Another poll can be sent in this channel %s.",
			gateway.UserMention(msg.Author.ID), gateway.Timestamp(decision.Until, "R")))
	}

	return nil
}

// reject deletes the poll and posts a warning that removes itself.
func (f *Feature) reject(ctx context.Context, msg gateway.Message, warning string) error {
	if err := f.gateway.DeleteMessage(ctx, msg.ChannelID, msg.ID, "[polls] Poll cooldown active"); err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}

	sent, err := f.gateway.SendMessage(ctx, msg.ChannelID, discord.MessageCreate{
		Content:         warning,
		AllowedMentions: &discord.AllowedMentions{Users: []snowflake.ID{msg.Author.ID}},
	})
	if err != nil {
		return fmt.Errorf("failed to send poll warning: %w", err)
	}

	deleteCtx := context.WithoutCancel(ctx)
	f.scheduler.After("", WarningLifetime, func() {
		if err := f.gateway.DeleteMessage(deleteCtx, sent.ChannelID, sent.ID, ""); err != nil {
			f.logger.Warn("Failed to delete poll warning", zap.Error(err))
		}
	})
	return nil
}

// scheduleCleanup frees the windows started at start once they have elapsed.
func (f *Feature) scheduleCleanup(msg gateway.Message, settings *config.PollRestrictions, start time.Time) {
	if settings.MinutesPerUser > 0 {
		f.scheduler.After(cleanupKey("user", msg.GuildID, msg.Author.ID), minutes(settings.MinutesPerUser), func() {
			f.gate.ForgetUser(msg.GuildID, msg.Author.ID, start)
		})
	}
	if settings.MinutesPerChannel > 0 {
		f.scheduler.After(cleanupKey("channel", msg.GuildID, msg.ChannelID), minutes(settings.MinutesPerChannel), func() {
			f.gate.ForgetChannel(msg.GuildID, msg.ChannelID, start)
		})
	}
}
