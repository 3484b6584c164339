package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

// membersPageSize is the largest page the list members endpoint returns.
const membersPageSize = 1000

// Client implements Gateway on top of a disgo client. Lookups try the cache
// before REST.
type Client struct {
	client bot.Client
	logger *zap.Logger
}

var _ Gateway = (*Client)(nil)

// NewClient wraps a disgo client.
func NewClient(client bot.Client, logger *zap.Logger) *Client {
	return &Client{
		client: client,
		logger: logger.Named("gateway"),
	}
}

// IsNotFound reports whether err is a REST 404.
func IsNotFound(err error) bool {
	var restErr *rest.Error
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// IsForbidden reports whether err is a REST 403, usually a missing permission
// or a role above the bot's own.
func IsForbidden(err error) bool {
	var restErr *rest.Error
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}

// optional converts a REST result into an option, treating 404 as absence.
func optional[T any](value *T, err error) (mo.Option[T], error) {
	if err != nil {
		if IsNotFound(err) {
			return mo.None[T](), nil
		}
		return mo.None[T](), err
	}
	if value == nil {
		return mo.None[T](), nil
	}
	return mo.Some(*value), nil
}

func (c *Client) SelfID() snowflake.ID {
	return c.client.ID()
}

func (c *Client) Latency() time.Duration {
	if gw := c.client.Gateway(); gw != nil {
		return gw.Latency()
	}
	return 0
}

func (c *Client) SendMessage(
	ctx context.Context, channelID snowflake.ID, msg discord.MessageCreate,
) (*discord.Message, error) {
	return c.client.Rest().CreateMessage(channelID, msg, rest.WithCtx(ctx))
}

func (c *Client) EditMessage(
	ctx context.Context, channelID, messageID snowflake.ID, msg discord.MessageUpdate,
) (*discord.Message, error) {
	return c.client.Rest().UpdateMessage(channelID, messageID, msg, rest.WithCtx(ctx))
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID, reason string) error {
	return c.client.Rest().DeleteMessage(channelID, messageID, rest.WithCtx(ctx), rest.WithReason(reason))
}

func (c *Client) FetchMessage(
	ctx context.Context, channelID, messageID snowflake.ID,
) (mo.Option[discord.Message], error) {
	if msg, ok := c.client.Caches().Message(channelID, messageID); ok {
		return mo.Some(msg), nil
	}
	return optional(c.client.Rest().GetMessage(channelID, messageID, rest.WithCtx(ctx)))
}

func (c *Client) FetchMessagesBefore(
	ctx context.Context, channelID, before snowflake.ID, limit int,
) ([]discord.Message, error) {
	return c.client.Rest().GetMessages(channelID, 0, before, 0, limit, rest.WithCtx(ctx))
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string) error {
	return c.client.Rest().AddReaction(channelID, messageID, emoji, rest.WithCtx(ctx))
}

func (c *Client) RemoveUserReaction(
	ctx context.Context, channelID, messageID snowflake.ID, emoji string, userID snowflake.ID,
) error {
	return c.client.Rest().RemoveUserReaction(channelID, messageID, emoji, userID, rest.WithCtx(ctx))
}

func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	return c.client.Rest().AddMemberRole(guildID, userID, roleID, rest.WithCtx(ctx), rest.WithReason(reason))
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	return c.client.Rest().RemoveMemberRole(guildID, userID, roleID, rest.WithCtx(ctx), rest.WithReason(reason))
}

func (c *Client) FetchMember(ctx context.Context, guildID, userID snowflake.ID) (mo.Option[discord.Member], error) {
	if member, ok := c.client.Caches().Member(guildID, userID); ok {
		return mo.Some(member), nil
	}
	return optional(c.client.Rest().GetMember(guildID, userID, rest.WithCtx(ctx)))
}

// FetchMembers pages through every member of the guild.
func (c *Client) FetchMembers(ctx context.Context, guildID snowflake.ID) ([]discord.Member, error) {
	var (
		members []discord.Member
		after   snowflake.ID
	)
	for {
		page, err := c.client.Rest().GetMembers(guildID, membersPageSize, after, rest.WithCtx(ctx))
		if err != nil {
			return nil, err
		}
		members = append(members, page...)

		if len(page) < membersPageSize {
			break
		}
		after = page[len(page)-1].User.ID
	}

	c.logger.Debug("Fetched guild members",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Int("count", len(members)))
	return members, nil
}

func (c *Client) SearchMembers(
	ctx context.Context, guildID snowflake.ID, query string, limit int,
) ([]discord.Member, error) {
	return c.client.Rest().SearchMembers(guildID, query, limit, rest.WithCtx(ctx))
}

func (c *Client) FetchUser(ctx context.Context, userID snowflake.ID) (mo.Option[discord.User], error) {
	return optional(c.client.Rest().GetUser(userID, rest.WithCtx(ctx)))
}

func (c *Client) FetchRole(ctx context.Context, guildID, roleID snowflake.ID) (mo.Option[discord.Role], error) {
	if role, ok := c.client.Caches().Role(guildID, roleID); ok {
		return mo.Some(role), nil
	}

	roles, err := c.client.Rest().GetRoles(guildID, rest.WithCtx(ctx))
	if err != nil {
		if IsNotFound(err) {
			return mo.None[discord.Role](), nil
		}
		return mo.None[discord.Role](), err
	}
	for _, role := range roles {
		if role.ID == roleID {
			return mo.Some(role), nil
		}
	}
	return mo.None[discord.Role](), nil
}

func (c *Client) FetchChannel(ctx context.Context, channelID snowflake.ID) (mo.Option[discord.Channel], error) {
	if channel, ok := c.client.Caches().Channel(channelID); ok {
		return mo.Some[discord.Channel](channel), nil
	}

	channel, err := c.client.Rest().GetChannel(channelID, rest.WithCtx(ctx))
	if err != nil {
		if IsNotFound(err) {
			return mo.None[discord.Channel](), nil
		}
		return mo.None[discord.Channel](), err
	}
	return mo.Some(channel), nil
}
