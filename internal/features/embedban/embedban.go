// Package embedban toggles the role that stops members from posting embeds.
package embedban

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

const (
	banReason   = "[interaction/embedban] User banned from using embeds"
	unbanReason = "[interaction/embedban] User unbanned from using embeds"
)

// Feature implements /embedban.
type Feature struct {
	config  *config.Config
	gateway gateway.Gateway
	logger  *zap.Logger
}

// New creates the embed ban feature.
func New(deps feature.Deps) *Feature {
	return &Feature{
		config:  deps.Config,
		gateway: deps.Gateway,
		logger:  deps.Logger.Named("embedban"),
	}
}

func (f *Feature) Name() string { return "embedban" }

func (f *Feature) Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     "embedban",
			Description:              "Toggles the embed ban role on the user",
			DefaultMemberPermissions: feature.Permissions(discord.PermissionManageMessages),
			Contexts:                 feature.GuildOnly,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "user",
					Description: "The user to toggle the embed ban role on",
					Required:    true,
				},
			},
		},
	}
}

func (f *Feature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	guildID := i.GuildID()
	server, ok := f.config.Server(guildID).Get()
	if !ok || server.EmbedBan.Role == 0 {
		return i.Reply(ctx, gateway.Ephemeral("Embed ban is not configured for this server."))
	}
	roleID := snowflake.ID(server.EmbedBan.Role)

	role, err := f.gateway.FetchRole(ctx, guildID, roleID)
	if err != nil {
		return fmt.Errorf("failed to fetch embed ban role: %w", err)
	}
	if role.IsAbsent() {
		f.logger.Error("Embed ban role does not exist", zap.Uint64("roleID", uint64(roleID)))
		return i.Reply(ctx, gateway.Content(
			fmt.Sprintf("Embed ban role %d does not exist. Please contact the bot operator.", roleID),
		))
	}

	input, _ := i.String("user")
	found, err := gateway.ResolveMember(ctx, f.gateway, guildID, input)
	if err != nil {
		return fmt.Errorf("failed to resolve member: %w", err)
	}
	member, ok := found.Get()
	if !ok {
		return i.Reply(ctx, gateway.Content("Could not find user by username or ID"))
	}

	userID := member.User.ID
	if gateway.HasRole(member, roleID) {
		if err := f.gateway.RemoveRole(ctx, guildID, userID, roleID, unbanReason); err != nil {
			return fmt.Errorf("failed to remove embed ban role: %w", err)
		}
		return i.Reply(ctx, gateway.Content(fmt.Sprintf("Removed embed ban role for %s.", gateway.UserMention(userID))))
	}

	if err := f.gateway.AddRole(ctx, guildID, userID, roleID, banReason); err != nil {
		return fmt.Errorf("failed to add embed ban role: %w", err)
	}
	return i.Reply(ctx, gateway.Content(fmt.Sprintf("Added embed ban role for %s.", gateway.UserMention(userID))))
}
