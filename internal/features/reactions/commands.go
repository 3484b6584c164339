package reactions

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

const (
	commandName = "reactions"

	maxChoices   = 25
	maxChoiceLen = 100
	maxFieldLen  = 1024
	maxEmbeds    = 10
)

var channelIDPattern = regexp.MustCompile(`\d{17,}`)

func patternOption(description string) discord.ApplicationCommandOptionString {
	return discord.ApplicationCommandOptionString{
		Name:         "pattern",
		Description:  description,
		Required:     true,
		Autocomplete: true,
	}
}

// Commands returns the /reactions definition.
func (f *Feature) Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     commandName,
			Description:              "Utilities for handling reactions",
			DefaultMemberPermissions: feature.Permissions(discord.PermissionManageMessages),
			Contexts:                 feature.GuildOnly,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionSubCommand{
					Name:        "first",
					Description: "Lists first reactions on a message",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "message",
							Description: "Message ID or URL",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "listbans",
					Description: "Lists all reaction bans",
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "ban",
					Description: "Bans reactions matching a pattern",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "pattern",
							Description: "Regular expression matched against the emoji",
							Required:    true,
						},
						discord.ApplicationCommandOptionString{
							Name:        "name",
							Description: "Display name of the ban",
							Required:    true,
						},
						discord.ApplicationCommandOptionString{
							Name:        "channels",
							Description: "Channels the ban applies to",
						},
						discord.ApplicationCommandOptionString{
							Name:        "ignored_channels",
							Description: "Channels the ban does not apply to",
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "unban",
					Description: "Removes a reaction ban",
					Options:     []discord.ApplicationCommandOption{patternOption("Ban to remove")},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "enable",
					Description: "Enables a reaction ban",
					Options:     []discord.ApplicationCommandOption{patternOption("Ban to enable")},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "disable",
					Description: "Disables a reaction ban",
					Options:     []discord.ApplicationCommandOption{patternOption("Ban to disable")},
				},
			},
		},
	}
}

// HandleCommand runs a /reactions subcommand.
func (f *Feature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	if _, ok := f.server(i.GuildID()); !ok {
		return i.Reply(ctx, gateway.Ephemeral("Reactions are not enabled in this server."))
	}

	pattern, _ := i.String("pattern")

	switch i.SubCommand() {
	case "first":
		return f.handleFirst(ctx, i)
	case "listbans":
		return f.handleListBans(ctx, i)
	case "ban":
		return f.handleBan(ctx, i, pattern)
	case "unban":
		return f.handleUnban(ctx, i, pattern)
	case "enable":
		return f.handleSetEnabled(ctx, i, pattern, true)
	case "disable":
		return f.handleSetEnabled(ctx, i, pattern, false)
	default:
		return fmt.Errorf("unknown subcommand %q", i.SubCommand())
	}
}

func (f *Feature) handleFirst(ctx context.Context, i gateway.Interaction) error {
	input, _ := i.String("message")
	messageID, ok := gateway.ParseMessageID(input)
	if !ok {
		return i.Reply(ctx, gateway.Ephemeral("Invalid message ID or URL."))
	}

	entries, err := f.db.Model().Reaction().ListForMessage(ctx, uint64(i.GuildID()), uint64(messageID))
	if err != nil {
		return err
	}

	for n, batch := range embedBatches(firstReactionEmbeds(FirstReactors(entries))) {
		msg := discord.MessageCreate{Embeds: batch}

		if n == 0 {
			err = i.Reply(ctx, msg)
		} else {
			err = i.Followup(ctx, msg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func channelList(ids []uint64) string {
	mentions := make([]string, 0, len(ids))
	for _, id := range ids {
		mentions = append(mentions, gateway.ChannelMention(snowflake.ID(id)))
	}
	return strings.Join(mentions, ", ")
}

// truncateField keeps an embed field value under the API limit.
func truncateField(value string) string {
	if value == "" {
		return "None"
	}
	if len(value) <= maxFieldLen {
		return value
	}
	cut := strings.LastIndexByte(value[:maxFieldLen-4], '\n')
	if cut <= 0 {
		cut = maxFieldLen - 4
	}
	return value[:cut] + "\n..."
}

// banListEmbed renders the "Reaction Bans" overview.
func banListEmbed(bans []*types.ReactionBan) discord.Embed {
	var enabled, disabled []string
	for _, ban := range bans {
		chunk := "- " + ban.Name + "\n  "
		switch {
		case len(ban.Channels) == 0 && len(ban.IgnoredChannels) == 0:
			chunk += "Channels: all"
		case len(ban.Channels) > 0 && len(ban.IgnoredChannels) > 0:
			chunk += "Channels: " + channelList(ban.Channels) + "\n  Ignored channels: " + channelList(ban.IgnoredChannels)
		case len(ban.Channels) > 0:
			chunk += "Channels: " + channelList(ban.Channels)
		default:
			chunk += "Ignored channels: " + channelList(ban.IgnoredChannels)
		}

		if ban.Enabled {
			enabled = append(enabled, chunk)
		} else {
			disabled = append(disabled, chunk)
		}
	}

	return discord.Embed{
		Title: "Reaction Bans",
		Color: feature.Color,
		Fields: []discord.EmbedField{
			{Name: "Enabled", Value: truncateField(strings.Join(enabled, "\n"))},
			{Name: "Disabled", Value: truncateField(strings.Join(disabled, "\n"))},
		},
	}
}

func (f *Feature) handleListBans(ctx context.Context, i gateway.Interaction) error {
	embed := banListEmbed(f.bans.bans(i.GuildID()))
	return i.Reply(ctx, discord.MessageCreate{Embeds: []discord.Embed{embed}})
}

func parseChannels(input string) []uint64 {
	var ids []uint64
	for _, match := range channelIDPattern.FindAllString(input, -1) {
		id, err := snowflake.Parse(match)
		if err == nil {
			ids = append(ids, uint64(id))
		}
	}
	return ids
}

func (f *Feature) handleBan(ctx context.Context, i gateway.Interaction, pattern string) error {
	if _, err := CompilePattern(pattern); err != nil {
		return i.Reply(ctx, gateway.Ephemeral(fmt.Sprintf("Invalid pattern `%s`.", pattern)))
	}

	guildID := i.GuildID()
	model := f.db.Model().Ban()

	existing, err := model.Get(ctx, uint64(guildID), pattern)
	if err != nil {
		return err
	}
	if existing.IsPresent() {
		return i.Reply(ctx, gateway.Ephemeral(fmt.Sprintf("`%s` is already banned.", pattern)))
	}

	name, _ := i.String("name")
	channels, _ := i.String("channels")
	ignored, _ := i.String("ignored_channels")

	inserted, err := model.Insert(ctx, &types.ReactionBan{
		GuildID:         uint64(guildID),
		Pattern:         pattern,
		Name:            name,
		Enabled:         true,
		Channels:        parseChannels(channels),
		IgnoredChannels: parseChannels(ignored),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return i.Reply(ctx, gateway.Ephemeral(fmt.Sprintf("`%s` is already banned.", pattern)))
	}

	if err := f.reload(ctx, guildID); err != nil {
		return err
	}

	f.logger.Info("Added reaction ban",
		zap.Uint64("guildID", uint64(guildID)),
		zap.String("pattern", pattern),
		zap.Uint64("userID", uint64(i.User().ID)))

	return i.Reply(ctx, gateway.Content(fmt.Sprintf("Banned reactions matching `%s` as **%s**.", pattern, name)))
}

func (f *Feature) handleUnban(ctx context.Context, i gateway.Interaction, pattern string) error {
	guildID := i.GuildID()
	model := f.db.Model().Ban()

	existing, err := model.Get(ctx, uint64(guildID), pattern)
	if err != nil {
		return err
	}
	if existing.IsAbsent() {
		return i.Reply(ctx, gateway.Ephemeral(fmt.Sprintf("Reaction ban `%s` not found.", pattern)))
	}

	deleted, err := model.Delete(ctx, uint64(guildID), pattern)
	if err != nil {
		return err
	}
	if !deleted {
		return i.Reply(ctx, gateway.Ephemeral(fmt.Sprintf("Reaction ban `%s` not found.", pattern)))
	}

	if err := f.reload(ctx, guildID); err != nil {
		return err
	}

	return i.Reply(ctx, gateway.Content(fmt.Sprintf("Removed reaction ban `%s`.", pattern)))
}

func (f *Feature) handleSetEnabled(ctx context.Context, i gateway.Interaction, pattern string, enabled bool) error {
	guildID := i.GuildID()
	model := f.db.Model().Ban()

	state := "disabled"
	if enabled {
		state = "enabled"
	}

	existing, err := model.Get(ctx, uint64(guildID), pattern)
	if err != nil {
		return err
	}
	ban, ok := existing.Get()
	if !ok {
		return i.Reply(ctx, gateway.Ephemeral(fmt.Sprintf("Reaction ban `%s` not found.", pattern)))
	}
	if ban.Enabled == enabled {
		return i.Reply(ctx, gateway.Ephemeral(fmt.Sprintf("Reaction ban `%s` is already %s.", pattern, state)))
	}

	changed, err := model.SetEnabled(ctx, uint64(guildID), pattern, enabled)
	if err != nil {
		return err
	}
	if !changed {
		return i.Reply(ctx, gateway.Ephemeral(fmt.Sprintf("Reaction ban `%s` is already %s.", pattern, state)))
	}

	if err := f.reload(ctx, guildID); err != nil {
		return err
	}

	return i.Reply(ctx, gateway.Content(fmt.Sprintf("Reaction ban `%s` %s.", pattern, state)))
}

// HandleAutocomplete suggests ban patterns. enable only offers disabled
// rules and disable only enabled ones.
func (f *Feature) HandleAutocomplete(ctx context.Context, i gateway.Interaction) error {
	_, value := i.Focused()

	filter := mo.None[bool]()
	switch i.SubCommand() {
	case "enable":
		filter = mo.Some(false)
	case "disable":
		filter = mo.Some(true)
	}

	bans, err := f.db.Model().Ban().Search(ctx, uint64(i.GuildID()), value, filter, maxChoices)
	if err != nil {
		return err
	}

	choices := make([]discord.AutocompleteChoice, 0, len(bans))
	for _, ban := range bans {
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  clip(fmt.Sprintf("%s (%s)", ban.Name, ban.Pattern), maxChoiceLen),
			Value: clip(ban.Pattern, maxChoiceLen),
		})
	}
	return i.Autocomplete(ctx, choices)
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
