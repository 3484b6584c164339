package feature

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/json"
)

// Permissions returns a default member permission set for a command definition.
func Permissions(perms discord.Permissions) *json.Nullable[discord.Permissions] {
	return json.NewNullablePtr(perms)
}

// GuildOnly restricts a command to guild channels.
var GuildOnly = []discord.InteractionContextType{discord.InteractionContextTypeGuild}

// Anywhere allows a command in guilds, bot DMs and private channels.
var Anywhere = []discord.InteractionContextType{
	discord.InteractionContextTypeGuild,
	discord.InteractionContextTypeBotDM,
	discord.InteractionContextTypePrivateChannel,
}

// Color is the accent color of every embed the bot sends.
const Color = 0xAA8ED6
