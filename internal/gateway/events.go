package gateway

import (
	"slices"
	"strconv"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// Sticker is a sticker attached to a message.
type Sticker struct {
	ID   snowflake.ID
	Name string
}

// Message is a guild message as seen by features, built from either the
// structured MESSAGE_CREATE/MESSAGE_UPDATE events or their raw packets.
type Message struct {
	ID          snowflake.ID
	GuildID     snowflake.ID
	ChannelID   snowflake.ID
	Author      discord.User
	MemberRoles []snowflake.ID
	Content     string
	Attachments []discord.Attachment
	Stickers    []Sticker
	HasPoll     bool
	CreatedAt   time.Time
	EditedAt    *time.Time
}

// URL returns the jump link of the message.
func (m Message) URL() string {
	return MessageURL(m.GuildID, m.ChannelID, m.ID)
}

// HasRole reports whether the author's member roles include roleID.
func (m Message) HasRole(roleID snowflake.ID) bool {
	return slices.Contains(m.MemberRoles, roleID)
}

// MessageUpdate is an edit of a guild message. ContentSet is false when the
// update did not carry content, such as an embed resolving.
type MessageUpdate struct {
	Message
	ContentSet bool
}

// Reaction is a reaction added to or removed from a guild message.
type Reaction struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
	UserID    snowflake.ID
	Emoji     Emoji
	Added     bool
	// Received and Order are stamped when the packet is accepted, in gateway
	// delivery order, before the event is handed to its own goroutine.
	Received time.Time
	Order    uint64
}

// MemberUpdate carries the new state of a guild member.
type MemberUpdate struct {
	GuildID snowflake.ID
	Member  discord.Member
}

// VoiceStateUpdate carries a member's new voice state.
type VoiceStateUpdate struct {
	GuildID   snowflake.ID
	UserID    snowflake.ID
	ChannelID *snowflake.ID
	Member    discord.Member
}

// AutoModAction is one executed action of an auto-moderation rule.
type AutoModAction struct {
	GuildID        snowflake.ID
	RuleID         snowflake.ID
	UserID         snowflake.ID
	ChannelID      snowflake.ID
	MessageID      snowflake.ID
	AlertMessageID snowflake.ID
	AlertChannelID snowflake.ID
	ActionType     discord.AutoModerationActionType
	Content        string
}

// MessageURL builds a message jump link.
func MessageURL(guildID, channelID, messageID snowflake.ID) string {
	return "https://discord.com/channels/" + guildID.String() + "/" + channelID.String() + "/" + messageID.String()
}

// ChannelMention formats a channel mention.
func ChannelMention(id snowflake.ID) string {
	return "<#" + id.String() + ">"
}

// UserMention formats a user mention.
func UserMention(id snowflake.ID) string {
	return "<@" + id.String() + ">"
}

// Timestamp formats a Discord timestamp tag with the given style.
func Timestamp(t time.Time, style string) string {
	return "<t:" + strconv.FormatInt(t.Unix(), 10) + ":" + style + ">"
}

// MessageFromDiscord normalizes a disgo message received in a guild.
func MessageFromDiscord(guildID snowflake.ID, msg discord.Message) Message {
	out := Message{
		ID:          msg.ID,
		GuildID:     guildID,
		ChannelID:   msg.ChannelID,
		Author:      msg.Author,
		Content:     msg.Content,
		Attachments: msg.Attachments,
		HasPoll:     msg.Poll != nil,
		CreatedAt:   msg.CreatedAt,
		EditedAt:    msg.EditedTimestamp,
	}
	if msg.Member != nil {
		out.MemberRoles = msg.Member.RoleIDs
	}
	for _, sticker := range msg.StickerItems {
		out.Stickers = append(out.Stickers, Sticker{ID: sticker.ID, Name: sticker.Name})
	}
	return out
}

// FromGuildMessageCreate normalizes a structured message create event.
func FromGuildMessageCreate(e *events.GuildMessageCreate) Message {
	return MessageFromDiscord(e.GuildID, e.Message)
}

// FromGuildMessageUpdate normalizes a structured message update event.
func FromGuildMessageUpdate(e *events.GuildMessageUpdate) MessageUpdate {
	return MessageUpdate{Message: MessageFromDiscord(e.GuildID, e.Message), ContentSet: true}
}

// FromReactionAdd normalizes a structured reaction add event.
func FromReactionAdd(e *events.GuildMessageReactionAdd) Reaction {
	return Reaction{
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		MessageID: e.MessageID,
		UserID:    e.UserID,
		Emoji:     EmojiFromPartial(e.Emoji),
		Added:     true,
	}
}

// FromReactionRemove normalizes a structured reaction remove event.
func FromReactionRemove(e *events.GuildMessageReactionRemove) Reaction {
	return Reaction{
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		MessageID: e.MessageID,
		UserID:    e.UserID,
		Emoji:     EmojiFromPartial(e.Emoji),
	}
}

// FromMemberUpdate normalizes a member update event.
func FromMemberUpdate(e *events.GuildMemberUpdate) MemberUpdate {
	return MemberUpdate{GuildID: e.GuildID, Member: e.Member}
}

// FromVoiceStateUpdate normalizes a voice state update event.
func FromVoiceStateUpdate(e *events.GuildVoiceStateUpdate) VoiceStateUpdate {
	return VoiceStateUpdate{
		GuildID:   e.VoiceState.GuildID,
		UserID:    e.VoiceState.UserID,
		ChannelID: e.VoiceState.ChannelID,
		Member:    e.Member,
	}
}
