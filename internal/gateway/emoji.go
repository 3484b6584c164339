package gateway

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidEmojiKey is returned when a string is not a custom emoji key.
var ErrInvalidEmojiKey = errors.New("invalid custom emoji key")

var customEmojiPattern = regexp.MustCompile(`^<(a?):(\w+):(\d+)>$`)

// Emoji identifies a reaction emoji. Custom emojis have a non-zero ID.
type Emoji struct {
	ID       snowflake.ID
	Name     string
	Animated bool
}

// EmojiFromPartial converts a disgo partial emoji.
func EmojiFromPartial(e discord.PartialEmoji) Emoji {
	emoji := Emoji{Animated: e.Animated}
	if e.ID != nil {
		emoji.ID = *e.ID
	}
	if e.Name != nil {
		emoji.Name = *e.Name
	}
	return emoji
}

// Custom reports whether the emoji is a guild emoji rather than unicode.
func (e Emoji) Custom() bool {
	return e.ID != 0
}

// Key returns the normalized form stored in the reaction log and matched by
// ban and notification patterns: <a:name:id>, <:name:id> or the NFC unicode.
func (e Emoji) Key() string {
	if !e.Custom() {
		return norm.NFC.String(e.Name)
	}
	if e.Animated {
		return fmt.Sprintf("<a:%s:%d>", e.Name, e.ID)
	}
	return fmt.Sprintf("<:%s:%d>", e.Name, e.ID)
}

// APIString returns the emoji in the form the reaction endpoints expect.
func (e Emoji) APIString() string {
	if !e.Custom() {
		return e.Name
	}
	return fmt.Sprintf("%s:%d", e.Name, e.ID)
}

// URL returns the CDN image of a custom emoji, or an empty string for unicode.
func (e Emoji) URL() string {
	if !e.Custom() {
		return ""
	}
	ext := "png"
	if e.Animated {
		ext = "gif"
	}
	return fmt.Sprintf("https://cdn.discordapp.com/emojis/%d.%s", e.ID, ext)
}

// ParseEmojiKey reverses Key. Anything that is not a custom emoji key is
// treated as unicode.
func ParseEmojiKey(key string) Emoji {
	emoji, err := ParseCustomEmoji(key)
	if err != nil {
		return Emoji{Name: norm.NFC.String(key)}
	}
	return emoji
}

// ParseCustomEmoji parses a <a:name:id> or <:name:id> string.
func ParseCustomEmoji(s string) (Emoji, error) {
	match := customEmojiPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return Emoji{}, fmt.Errorf("%w: %q", ErrInvalidEmojiKey, s)
	}

	id, err := snowflake.Parse(match[3])
	if err != nil {
		return Emoji{}, fmt.Errorf("%w: %w", ErrInvalidEmojiKey, err)
	}

	return Emoji{ID: id, Name: match[2], Animated: match[1] == "a"}, nil
}

// EmojiURL returns the CDN link for a custom emoji key, or an empty string.
func EmojiURL(key string) string {
	return ParseEmojiKey(key).URL()
}

// ReactionAPIString converts an emoji key to the reaction endpoint form.
func ReactionAPIString(key string) string {
	return ParseEmojiKey(key).APIString()
}
