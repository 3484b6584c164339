package reactions

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

// notificationEmbed renders the notification for a message.
func notificationEmbed(
	groupName, emoji string, count int, guildID, channelID, messageID snowflake.ID,
) discord.Embed {
	return discord.Embed{
		Title: groupName,
		Description: fmt.Sprintf("%s reached **%d** on a message in %s\n[Jump to message](%s)",
			emoji, count, gateway.ChannelMention(channelID), gateway.MessageURL(guildID, channelID, messageID)),
		Color: feature.Color,
	}
}

// notify evaluates every notification group against a reaction add.
func (f *Feature) notify(ctx context.Context, server *config.Server, reaction gateway.Reaction, key string) {
	channelID := snowflake.ID(server.Reactions.Notifications.Channel)
	if channelID == 0 {
		return
	}

	for _, g := range f.groups[reaction.GuildID] {
		if !g.Enabled || !g.re.MatchString(key) {
			continue
		}

		logger := f.logger.With(
			zap.String("group", g.Name),
			zap.Uint64("guildID", uint64(reaction.GuildID)),
			zap.Uint64("messageID", uint64(reaction.MessageID)))

		count, err := f.db.Model().Reaction().NetCount(ctx, uint64(reaction.GuildID), uint64(reaction.MessageID), key)
		if err != nil {
			logger.Error("Failed to count reactions", zap.Error(err))
			continue
		}
		if count < g.Threshold {
			continue
		}

		if err := f.raise(ctx, g, channelID, reaction, key, count); err != nil {
			logger.Error("Failed to raise notification", zap.Error(err))
		}
	}
}

// raise sends the first notification for a message or queues an edit of the
// existing one.
func (f *Feature) raise(
	ctx context.Context, g group, channelID snowflake.ID, reaction gateway.Reaction, key string, count int,
) error {
	model := f.db.Model().Notification()

	task := editTask{
		GuildID:        reaction.GuildID,
		Pattern:        g.Pattern,
		GroupName:      g.Name,
		Emoji:          key,
		MessageID:      reaction.MessageID,
		MessageChannel: reaction.ChannelID,
		Count:          count,
	}

	existing, err := model.Get(ctx, uint64(reaction.GuildID), g.Pattern, uint64(reaction.MessageID))
	if err != nil {
		return err
	}
	if mapping, ok := existing.Get(); ok {
		task.ChannelID = snowflake.ID(mapping.ChannelID)
		task.NotificationID = snowflake.ID(mapping.NotificationID)
		f.queue.Push(task)
		return nil
	}

	embed := notificationEmbed(g.Name, key, count, reaction.GuildID, reaction.ChannelID, reaction.MessageID)
	sent, err := f.gateway.SendMessage(ctx, channelID, discord.MessageCreate{Embeds: []discord.Embed{embed}})
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	inserted, err := model.Insert(ctx, &types.ReactionNotification{
		GuildID:        uint64(reaction.GuildID),
		Pattern:        g.Pattern,
		MessageID:      uint64(reaction.MessageID),
		ChannelID:      uint64(channelID),
		NotificationID: uint64(sent.ID),
		Count:          count,
	})
	if err != nil {
		return err
	}
	if inserted {
		return nil
	}

	// Another event created the notification first; ours becomes an edit of it
	if err := f.gateway.DeleteMessage(ctx, channelID, sent.ID, "duplicate reaction notification"); err != nil {
		f.logger.Warn("Failed to delete duplicate notification", zap.Error(err))
	}

	winner, err := model.Get(ctx, uint64(reaction.GuildID), g.Pattern, uint64(reaction.MessageID))
	if err != nil {
		return err
	}
	if mapping, ok := winner.Get(); ok {
		task.ChannelID = snowflake.ID(mapping.ChannelID)
		task.NotificationID = snowflake.ID(mapping.NotificationID)
		f.queue.Push(task)
	}
	return nil
}
