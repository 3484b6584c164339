// Package info logs message details for moderators and shows user avatars.
package info

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

const (
	// LogCommand is the message context menu entry.
	LogCommand    = "Log Information"
	avatarCommand = "avatar"
)

// Feature implements the Log Information context menu and /avatar.
type Feature struct {
	config  *config.Config
	gateway gateway.Gateway
	logger  *zap.Logger
}

// New creates the info feature.
func New(deps feature.Deps) *Feature {
	return &Feature{
		config:  deps.Config,
		gateway: deps.Gateway,
		logger:  deps.Logger.Named("info"),
	}
}

func (f *Feature) Name() string { return "info" }

func (f *Feature) Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.MessageCommandCreate{
			Name:                     LogCommand,
			DefaultMemberPermissions: feature.Permissions(discord.PermissionManageMessages),
			Contexts:                 feature.GuildOnly,
		},
		discord.SlashCommandCreate{
			Name:                     avatarCommand,
			Description:              "Displays the user's global and server avatars",
			DefaultMemberPermissions: feature.Permissions(discord.PermissionManageMessages),
			Contexts:                 feature.GuildOnly,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "user",
					Description: "The user's username or ID",
					Required:    true,
				},
			},
		},
	}
}

func (f *Feature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	switch i.Key() {
	case LogCommand:
		return f.logInformation(ctx, i)
	case avatarCommand:
		return f.avatar(ctx, i)
	default:
		return fmt.Errorf("unknown info command %q", i.Key())
	}
}

// informationEmbed describes a message for the log channel.
func informationEmbed(msg discord.Message) discord.Embed {
	content := msg.Content
	if content == "" {
		content = "*(No content)*"
	}

	builder := discord.NewEmbedBuilder().
		SetColor(feature.Color).
		SetAuthor(fmt.Sprintf("%s (%d)", msg.Author.Username, msg.Author.ID), "", msg.Author.EffectiveAvatarURL()).
		SetDescription(content).
		AddField("Timestamp", gateway.Timestamp(msg.CreatedAt, "d")+" "+gateway.Timestamp(msg.CreatedAt, "T"), false)

	if msg.EditedTimestamp != nil {
		edited := *msg.EditedTimestamp
		builder.AddField("Edited", gateway.Timestamp(edited, "d")+" "+gateway.Timestamp(edited, "T"), false)
	}

	if len(msg.Attachments) > 0 {
		links := make([]string, 0, len(msg.Attachments))
		for _, attachment := range msg.Attachments {
			links = append(links, fmt.Sprintf("[%s](%s)", attachment.Filename, attachment.URL))
		}
		builder.AddField("Attachment", strings.Join(links, "\n"), false)
	}

	return builder.Build()
}

func (f *Feature) logInformation(ctx context.Context, i gateway.Interaction) error {
	msg, ok := i.TargetMessage().Get()
	if !ok {
		return i.Reply(ctx, gateway.Ephemeral("This command must be used on a message."))
	}

	server, ok := f.config.Server(i.GuildID()).Get()
	if !ok || server.Info.LogChannel == 0 {
		return i.Reply(ctx, gateway.Ephemeral("Message logging is not configured for this server."))
	}
	logChannel := snowflake.ID(server.Info.LogChannel)

	channel, err := f.gateway.FetchChannel(ctx, logChannel)
	if err != nil {
		return fmt.Errorf("failed to fetch log channel: %w", err)
	}
	if _, text := channel.OrEmpty().(discord.MessageChannel); !text {
		f.logger.Warn("Log channel is not a text channel", zap.Uint64("channelID", uint64(logChannel)))
		return i.Reply(ctx, gateway.Ephemeral(
			"An error occurred executing this interaction - output channel set incorrectly.",
		))
	}

	content := fmt.Sprintf("*Message information requested by %s in %s; [Jump to message](%s)*",
		gateway.UserMention(i.User().ID),
		gateway.ChannelMention(msg.ChannelID),
		gateway.MessageURL(i.GuildID(), msg.ChannelID, msg.ID))

	if _, err := f.gateway.SendMessage(ctx, logChannel, discord.MessageCreate{
		Content:         content,
		Embeds:          []discord.Embed{informationEmbed(msg)},
		AllowedMentions: &discord.AllowedMentions{},
	}); err != nil {
		return fmt.Errorf("failed to log message information: %w", err)
	}

	return i.Reply(ctx, gateway.Ephemeral("Message information sent to "+gateway.ChannelMention(logChannel)))
}

// resolveUser finds a user from a mention, an ID or a member's username.
func (f *Feature) resolveUser(ctx context.Context, guildID snowflake.ID, input string) (mo.Option[discord.User], error) {
	if id, ok := gateway.ParseUserID(input); ok {
		return f.gateway.FetchUser(ctx, id)
	}

	member, err := gateway.ResolveMember(ctx, f.gateway, guildID, input)
	if err != nil {
		return mo.None[discord.User](), err
	}
	if m, ok := member.Get(); ok {
		return mo.Some(m.User), nil
	}
	return mo.None[discord.User](), nil
}

func (f *Feature) avatar(ctx context.Context, i gateway.Interaction) error {
	input, _ := i.String("user")
	found, err := f.resolveUser(ctx, i.GuildID(), input)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	user, ok := found.Get()
	if !ok {
		return i.Reply(ctx, gateway.Content("Could not find user by username or ID"))
	}

	embeds := []discord.Embed{
		discord.NewEmbedBuilder().
			SetColor(feature.Color).
			SetTitle("Global Avatar").
			SetImage(user.EffectiveAvatarURL()).
			Build(),
	}

	member, err := f.gateway.FetchMember(ctx, i.GuildID(), user.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch member: %w", err)
	}
	server := "❌"
	if m, ok := member.Get(); ok {
		if url := m.AvatarURL(); url != nil {
			embeds = append(embeds, discord.NewEmbedBuilder().
				SetColor(feature.Color).
				SetTitle("Server Avatar").
				SetImage(*url).
				Build())
			server = "✅"
		}
	}

	return i.Reply(ctx, discord.MessageCreate{
		Content: fmt.Sprintf("✅ Global Avatar; %s Server Avatar", server),
		Embeds:  embeds,
	})
}
