package gateway

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
)

// ErrNotGuildEvent is returned for raw packets that were not sent in a guild.
var ErrNotGuildEvent = errors.New("packet is not a guild event")

// Raw packet types consumed alongside the structured events.
const (
	RawMessageCreate          = gateway.EventTypeMessageCreate
	RawMessageUpdate          = gateway.EventTypeMessageUpdate
	RawMessageReactionAdd     = gateway.EventTypeMessageReactionAdd
	RawMessageReactionRemove  = gateway.EventTypeMessageReactionRemove
	RawAutoModerationExecuted = gateway.EventTypeAutoModerationActionExecution
)

type rawEmoji struct {
	ID       *snowflake.ID `json:"id"`
	Name     *string       `json:"name"`
	Animated bool          `json:"animated"`
}

type rawReaction struct {
	UserID    snowflake.ID  `json:"user_id"`
	ChannelID snowflake.ID  `json:"channel_id"`
	MessageID snowflake.ID  `json:"message_id"`
	GuildID   *snowflake.ID `json:"guild_id"`
	Emoji     rawEmoji      `json:"emoji"`
}

type rawSticker struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
}

type rawMember struct {
	Roles []snowflake.ID `json:"roles"`
}

type rawMessage struct {
	ID              snowflake.ID         `json:"id"`
	ChannelID       snowflake.ID         `json:"channel_id"`
	GuildID         *snowflake.ID        `json:"guild_id"`
	Author          *discord.User        `json:"author"`
	Member          *rawMember           `json:"member"`
	Content         *string              `json:"content"`
	Attachments     []discord.Attachment `json:"attachments"`
	StickerItems    []rawSticker         `json:"sticker_items"`
	Poll            *struct{}            `json:"poll"`
	Timestamp       time.Time            `json:"timestamp"`
	EditedTimestamp *time.Time           `json:"edited_timestamp"`
}

type rawActionMetadata struct {
	ChannelID snowflake.ID `json:"channel_id"`
}

type rawAction struct {
	Type     discord.AutoModerationActionType `json:"type"`
	Metadata *rawActionMetadata               `json:"metadata"`
}

type rawAutoModExecution struct {
	GuildID              snowflake.ID  `json:"guild_id"`
	Action               rawAction     `json:"action"`
	RuleID               snowflake.ID  `json:"rule_id"`
	UserID               snowflake.ID  `json:"user_id"`
	ChannelID            *snowflake.ID `json:"channel_id"`
	MessageID            *snowflake.ID `json:"message_id"`
	AlertSystemMessageID *snowflake.ID `json:"alert_system_message_id"`
	Content              string        `json:"content"`
}

func decodeRaw(payload io.Reader, v any) error {
	data, err := io.ReadAll(payload)
	if err != nil {
		return fmt.Errorf("failed to read raw packet: %w", err)
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode raw packet: %w", err)
	}
	return nil
}

// DecodeRawReaction decodes a MESSAGE_REACTION_ADD or MESSAGE_REACTION_REMOVE payload.
func DecodeRawReaction(eventType gateway.EventType, payload io.Reader) (Reaction, error) {
	var raw rawReaction
	if err := decodeRaw(payload, &raw); err != nil {
		return Reaction{}, err
	}
	if raw.GuildID == nil {
		return Reaction{}, ErrNotGuildEvent
	}

	return Reaction{
		GuildID:   *raw.GuildID,
		ChannelID: raw.ChannelID,
		MessageID: raw.MessageID,
		UserID:    raw.UserID,
		Emoji: EmojiFromPartial(discord.PartialEmoji{
			ID:       raw.Emoji.ID,
			Name:     raw.Emoji.Name,
			Animated: raw.Emoji.Animated,
		}),
		Added: eventType == RawMessageReactionAdd,
	}, nil
}

// DecodeRawMessage decodes a MESSAGE_CREATE or MESSAGE_UPDATE payload. Update
// payloads may omit most fields; ContentSet tells whether content was present.
func DecodeRawMessage(payload io.Reader) (MessageUpdate, error) {
	var raw rawMessage
	if err := decodeRaw(payload, &raw); err != nil {
		return MessageUpdate{}, err
	}
	if raw.GuildID == nil {
		return MessageUpdate{}, ErrNotGuildEvent
	}

	msg := Message{
		ID:          raw.ID,
		GuildID:     *raw.GuildID,
		ChannelID:   raw.ChannelID,
		Attachments: raw.Attachments,
		HasPoll:     raw.Poll != nil,
		CreatedAt:   raw.Timestamp,
		EditedAt:    raw.EditedTimestamp,
	}
	if raw.Author != nil {
		msg.Author = *raw.Author
	}
	if raw.Member != nil {
		msg.MemberRoles = raw.Member.Roles
	}
	if raw.Content != nil {
		msg.Content = *raw.Content
	}
	for _, sticker := range raw.StickerItems {
		msg.Stickers = append(msg.Stickers, Sticker(sticker))
	}

	return MessageUpdate{Message: msg, ContentSet: raw.Content != nil}, nil
}

// DecodeRawAutoMod decodes an AUTO_MODERATION_ACTION_EXECUTION payload.
func DecodeRawAutoMod(payload io.Reader) (AutoModAction, error) {
	var raw rawAutoModExecution
	if err := decodeRaw(payload, &raw); err != nil {
		return AutoModAction{}, err
	}

	action := AutoModAction{
		GuildID:    raw.GuildID,
		RuleID:     raw.RuleID,
		UserID:     raw.UserID,
		ActionType: raw.Action.Type,
		Content:    raw.Content,
	}
	if raw.ChannelID != nil {
		action.ChannelID = *raw.ChannelID
	}
	if raw.MessageID != nil {
		action.MessageID = *raw.MessageID
	}
	if raw.AlertSystemMessageID != nil {
		action.AlertMessageID = *raw.AlertSystemMessageID
	}
	if raw.Action.Metadata != nil {
		action.AlertChannelID = raw.Action.Metadata.ChannelID
	}
	return action, nil
}
