// Package gatewaytest provides in-memory fakes of the gateway surface.
package gatewaytest

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/samber/mo"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

// SentMessage is a message created through the fake.
type SentMessage struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	Message   discord.MessageCreate
}

// EditedMessage is an edit issued through the fake.
type EditedMessage struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
	Update    discord.MessageUpdate
}

// RoleChange is a role added to or removed from a member.
type RoleChange struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
	RoleID  snowflake.ID
	Reason  string
	Added   bool
}

// RemovedReaction is a user reaction removed through the fake.
type RemovedReaction struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
	Emoji     string
	UserID    snowflake.ID
}

// AddedReaction is a reaction added by the bot.
type AddedReaction struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
	Emoji     string
}

// DeletedMessage is a message deleted through the fake.
type DeletedMessage struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

// Gateway is a recording in-memory Gateway. Seed state with the Put methods
// and make operations fail by setting the Fail fields.
type Gateway struct {
	mu     sync.Mutex
	nextID snowflake.ID

	Self snowflake.ID
	Ping time.Duration

	messages map[snowflake.ID]discord.Message
	members  map[snowflake.ID]map[snowflake.ID]discord.Member
	roles    map[snowflake.ID]map[snowflake.ID]discord.Role
	channels map[snowflake.ID]discord.Channel
	users    map[snowflake.ID]discord.User

	sent    []SentMessage
	edits   []EditedMessage
	deleted []DeletedMessage
	roleOps []RoleChange
	removed []RemovedReaction
	reacted []AddedReaction

	FailSend       bool
	FailEdit       bool
	FailRoleChange func(userID snowflake.ID) bool
}

var _ gateway.Gateway = (*Gateway)(nil)

// New creates an empty fake gateway.
func New() *Gateway {
	return &Gateway{
		nextID:   1_000_000,
		Self:     1,
		messages: make(map[snowflake.ID]discord.Message),
		members:  make(map[snowflake.ID]map[snowflake.ID]discord.Member),
		roles:    make(map[snowflake.ID]map[snowflake.ID]discord.Role),
		channels: make(map[snowflake.ID]discord.Channel),
		users:    make(map[snowflake.ID]discord.User),
	}
}

// PutMessage makes a message fetchable.
func (g *Gateway) PutMessage(msg discord.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages[msg.ID] = msg
}

// PutMember makes a member fetchable.
func (g *Gateway) PutMember(guildID snowflake.ID, member discord.Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.members[guildID] == nil {
		g.members[guildID] = make(map[snowflake.ID]discord.Member)
	}
	member.GuildID = guildID
	g.members[guildID][member.User.ID] = member
	g.users[member.User.ID] = member.User
}

// PutRole makes a role fetchable.
func (g *Gateway) PutRole(guildID snowflake.ID, role discord.Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.roles[guildID] == nil {
		g.roles[guildID] = make(map[snowflake.ID]discord.Role)
	}
	g.roles[guildID][role.ID] = role
}

// PutChannel makes a channel fetchable.
func (g *Gateway) PutChannel(channel discord.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[channel.ID()] = channel
}

// Member returns the current state of a seeded member.
func (g *Gateway) Member(guildID, userID snowflake.ID) (discord.Member, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	member, ok := g.members[guildID][userID]
	return member, ok
}

// Sent returns the messages created so far.
func (g *Gateway) Sent() []SentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.sent)
}

// Edits returns the message edits issued so far.
func (g *Gateway) Edits() []EditedMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.edits)
}

// Deleted returns the deleted messages.
func (g *Gateway) Deleted() []DeletedMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.deleted)
}

// RoleChanges returns the role additions and removals issued so far.
func (g *Gateway) RoleChanges() []RoleChange {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.roleOps)
}

// RemovedReactions returns the user reactions removed so far.
func (g *Gateway) RemovedReactions() []RemovedReaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.removed)
}

// AddedReactions returns the reactions the bot added.
func (g *Gateway) AddedReactions() []AddedReaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.reacted)
}

func (g *Gateway) SelfID() snowflake.ID   { return g.Self }
func (g *Gateway) Latency() time.Duration { return g.Ping }

func (g *Gateway) SendMessage(
	_ context.Context, channelID snowflake.ID, msg discord.MessageCreate,
) (*discord.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailSend {
		return nil, ErrInjected
	}

	g.nextID++
	g.sent = append(g.sent, SentMessage{ID: g.nextID, ChannelID: channelID, Message: msg})

	created := discord.Message{ID: g.nextID, ChannelID: channelID, Content: msg.Content, Embeds: msg.Embeds}
	g.messages[created.ID] = created
	return &created, nil
}

func (g *Gateway) EditMessage(
	_ context.Context, channelID, messageID snowflake.ID, msg discord.MessageUpdate,
) (*discord.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailEdit {
		return nil, ErrInjected
	}

	g.edits = append(g.edits, EditedMessage{ChannelID: channelID, MessageID: messageID, Update: msg})
	edited := g.messages[messageID]
	return &edited, nil
}

func (g *Gateway) DeleteMessage(_ context.Context, channelID, messageID snowflake.ID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.deleted = append(g.deleted, DeletedMessage{ChannelID: channelID, MessageID: messageID})
	delete(g.messages, messageID)
	return nil
}

func (g *Gateway) FetchMessage(_ context.Context, _, messageID snowflake.ID) (mo.Option[discord.Message], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if msg, ok := g.messages[messageID]; ok {
		return mo.Some(msg), nil
	}
	return mo.None[discord.Message](), nil
}

// FetchMessagesBefore returns seeded messages of the channel older than before,
// newest first like the REST endpoint.
func (g *Gateway) FetchMessagesBefore(
	_ context.Context, channelID, before snowflake.ID, limit int,
) ([]discord.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []discord.Message
	for _, msg := range g.messages {
		if msg.ChannelID == channelID && msg.ID < before {
			out = append(out, msg)
		}
	}
	slices.SortFunc(out, func(a, b discord.Message) int {
		return cmp.Compare(b.ID, a.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *Gateway) AddReaction(_ context.Context, channelID, messageID snowflake.ID, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reacted = append(g.reacted, AddedReaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (g *Gateway) RemoveUserReaction(
	_ context.Context, channelID, messageID snowflake.ID, emoji string, userID snowflake.ID,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removed = append(g.removed, RemovedReaction{
		ChannelID: channelID, MessageID: messageID, Emoji: emoji, UserID: userID,
	})
	return nil
}

func (g *Gateway) changeRole(guildID, userID, roleID snowflake.ID, reason string, added bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailRoleChange != nil && g.FailRoleChange(userID) {
		return ErrInjected
	}

	g.roleOps = append(g.roleOps, RoleChange{
		GuildID: guildID, UserID: userID, RoleID: roleID, Reason: reason, Added: added,
	})

	member, ok := g.members[guildID][userID]
	if !ok {
		return nil
	}
	member.RoleIDs = slices.DeleteFunc(slices.Clone(member.RoleIDs), func(id snowflake.ID) bool {
		return id == roleID
	})
	if added {
		member.RoleIDs = append(member.RoleIDs, roleID)
	}
	g.members[guildID][userID] = member
	return nil
}

func (g *Gateway) AddRole(_ context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	return g.changeRole(guildID, userID, roleID, reason, true)
}

func (g *Gateway) RemoveRole(_ context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	return g.changeRole(guildID, userID, roleID, reason, false)
}

func (g *Gateway) FetchMember(_ context.Context, guildID, userID snowflake.ID) (mo.Option[discord.Member], error) {
	member, ok := g.Member(guildID, userID)
	if !ok {
		return mo.None[discord.Member](), nil
	}
	return mo.Some(member), nil
}

// FetchMembers returns the seeded members of a guild ordered by user ID.
func (g *Gateway) FetchMembers(_ context.Context, guildID snowflake.ID) ([]discord.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	members := make([]discord.Member, 0, len(g.members[guildID]))
	for _, member := range g.members[guildID] {
		members = append(members, member)
	}
	slices.SortFunc(members, func(a, b discord.Member) int {
		return cmp.Compare(a.User.ID, b.User.ID)
	})
	return members, nil
}

func (g *Gateway) SearchMembers(
	ctx context.Context, guildID snowflake.ID, query string, limit int,
) ([]discord.Member, error) {
	members, _ := g.FetchMembers(ctx, guildID)

	var out []discord.Member
	for _, member := range members {
		if len(out) == limit {
			break
		}
		if strings.HasPrefix(member.User.Username, query) {
			out = append(out, member)
		}
	}
	return out, nil
}

func (g *Gateway) FetchUser(_ context.Context, userID snowflake.ID) (mo.Option[discord.User], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if user, ok := g.users[userID]; ok {
		return mo.Some(user), nil
	}
	return mo.None[discord.User](), nil
}

func (g *Gateway) FetchRole(_ context.Context, guildID, roleID snowflake.ID) (mo.Option[discord.Role], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if role, ok := g.roles[guildID][roleID]; ok {
		return mo.Some(role), nil
	}
	return mo.None[discord.Role](), nil
}

func (g *Gateway) FetchChannel(_ context.Context, channelID snowflake.ID) (mo.Option[discord.Channel], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if channel, ok := g.channels[channelID]; ok {
		return mo.Some(channel), nil
	}
	return mo.None[discord.Channel](), nil
}
