// Package gateway adapts the Discord client to the small surface features use
// and normalizes inbound events into one shape per kind.
package gateway

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/samber/mo"
)

// Gateway is the set of Discord operations features depend on. Fetches return
// an empty option when the entity does not exist.
type Gateway interface {
	SelfID() snowflake.ID
	Latency() time.Duration

	SendMessage(ctx context.Context, channelID snowflake.ID, msg discord.MessageCreate) (*discord.Message, error)
	EditMessage(
		ctx context.Context, channelID, messageID snowflake.ID, msg discord.MessageUpdate,
	) (*discord.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID, reason string) error
	FetchMessage(ctx context.Context, channelID, messageID snowflake.ID) (mo.Option[discord.Message], error)
	FetchMessagesBefore(
		ctx context.Context, channelID, before snowflake.ID, limit int,
	) ([]discord.Message, error)

	AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string) error
	RemoveUserReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string, userID snowflake.ID) error

	AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error

	FetchMember(ctx context.Context, guildID, userID snowflake.ID) (mo.Option[discord.Member], error)
	FetchMembers(ctx context.Context, guildID snowflake.ID) ([]discord.Member, error)
	SearchMembers(ctx context.Context, guildID snowflake.ID, query string, limit int) ([]discord.Member, error)
	FetchUser(ctx context.Context, userID snowflake.ID) (mo.Option[discord.User], error)
	FetchRole(ctx context.Context, guildID, roleID snowflake.ID) (mo.Option[discord.Role], error)
	FetchChannel(ctx context.Context, channelID snowflake.ID) (mo.Option[discord.Channel], error)
}

var (
	userInputPattern = regexp.MustCompile(`(?:<@!?)?(\d{17,})(?:>)?`)
	idPattern        = regexp.MustCompile(`\d{17,}`)
)

// ParseUserID extracts a user ID from a mention or a bare ID.
func ParseUserID(input string) (snowflake.ID, bool) {
	match := userInputPattern.FindStringSubmatch(input)
	if match == nil {
		return 0, false
	}
	id, err := snowflake.Parse(match[1])
	return id, err == nil
}

// ParseMessageID extracts a message ID from a bare ID or a message link.
// For links the last path segment is used.
func ParseMessageID(input string) (snowflake.ID, bool) {
	input = strings.TrimRight(strings.TrimSpace(input), "/")
	ids := idPattern.FindAllString(input, -1)
	if len(ids) == 0 {
		return 0, false
	}
	id, err := snowflake.Parse(ids[len(ids)-1])
	return id, err == nil
}

// ResolveMember finds a guild member from a mention, an ID or an exact username.
func ResolveMember(ctx context.Context, gw Gateway, guildID snowflake.ID, input string) (mo.Option[discord.Member], error) {
	if id, ok := ParseUserID(input); ok {
		return gw.FetchMember(ctx, guildID, id)
	}

	username := strings.TrimPrefix(strings.TrimSpace(input), "@")
	members, err := gw.SearchMembers(ctx, guildID, username, 10)
	if err != nil {
		return mo.None[discord.Member](), err
	}
	for _, member := range members {
		if strings.EqualFold(member.User.Username, username) {
			return mo.Some(member), nil
		}
	}
	return mo.None[discord.Member](), nil
}

// HasRole reports whether the member holds roleID.
func HasRole(member discord.Member, roleID snowflake.ID) bool {
	return slices.Contains(member.RoleIDs, roleID)
}
