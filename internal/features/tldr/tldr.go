// Package tldr summarizes the conversation leading up to a message.
package tldr

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/ai"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"go.uber.org/zap"
)

const (
	// CommandName is the message context menu entry.
	CommandName = "TLDR Conversation"

	historyLimit = 100
)

// Feature implements the TLDR context menu.
type Feature struct {
	gateway    gateway.Gateway
	summarizer ai.Summarizer
	logger     *zap.Logger
}

// New creates the tldr feature.
func New(deps feature.Deps) *Feature {
	return &Feature{
		gateway:    deps.Gateway,
		summarizer: deps.Summarizer,
		logger:     deps.Logger.Named("tldr"),
	}
}

func (f *Feature) Name() string { return "tldr" }

func (f *Feature) Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.MessageCommandCreate{
			Name:                     CommandName,
			DefaultMemberPermissions: feature.Permissions(discord.PermissionManageMessages),
			Contexts:                 feature.GuildOnly,
		},
	}
}

// transcript renders messages oldest first as `name: "content"` lines.
func transcript(newestFirst []discord.Message) string {
	messages := slices.Clone(newestFirst)
	slices.Reverse(messages)

	var b strings.Builder
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %q\n", msg.Author.EffectiveName(), msg.Content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (f *Feature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	target, ok := i.TargetMessage().Get()
	if !ok {
		return i.Reply(ctx, gateway.Ephemeral("This command must be used on a message."))
	}

	if err := i.Defer(ctx, true); err != nil {
		return err
	}

	history, err := f.gateway.FetchMessagesBefore(ctx, target.ChannelID, target.ID, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch conversation: %w", err)
	}

	text := transcript(history)
	if text == "" {
		return i.Followup(ctx, gateway.Ephemeral("Failed to process messages to TL;DR"))
	}

	summary, err := f.summarizer.Summarize(ctx, text)
	if err != nil {
		f.logger.Error("Failed to summarize conversation", zap.Error(err))
		return i.Followup(ctx, gateway.Ephemeral("Failed to summarize the conversation."))
	}

	flagged, err := f.summarizer.Flagged(ctx, summary)
	if err != nil {
		f.logger.Error("Failed to moderate summary", zap.Error(err))
		return i.Followup(ctx, gateway.Ephemeral("Failed to check the summary with moderation."))
	}
	if flagged {
		f.logger.Warn("Summary flagged by moderation", zap.Uint64("channelID", uint64(target.ChannelID)))
		return i.Followup(ctx, gateway.Ephemeral("The summary was flagged by moderation."))
	}

	embed := discord.NewEmbedBuilder().
		SetColor(feature.Color).
		SetTitle("TL;DR").
		SetDescription(summary).
		SetFooterText(fmt.Sprintf("%d messages before the selected message", len(history))).
		Build()

	return i.Followup(ctx, discord.NewMessageCreateBuilder().
		AddEmbeds(embed).
		SetEphemeral(true).
		Build())
}
