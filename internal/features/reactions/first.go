package reactions

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
)

const (
	firstReactionsTitle = "First reactions"
	noReactionsMessage  = "No reactions found."
	maxDescription      = 3900
	maxMessageEmbedText = 6000
)

// FirstReactors replays a message's log and returns every entry at which the
// running count of its emoji goes from 0 to 1. Entries must be in
// (timestamp, sequence, id) order. The result is grouped by emoji in order of first
// appearance, each group in log order.
func FirstReactors(entries []*types.Reaction) []*types.Reaction {
	var order []string
	counts := make(map[string]int)
	firsts := make(map[string][]*types.Reaction)

	for _, entry := range entries {
		if _, seen := counts[entry.Emoji]; !seen {
			order = append(order, entry.Emoji)
		}

		if entry.Added {
			counts[entry.Emoji]++
		} else {
			counts[entry.Emoji]--
		}

		if entry.Added && counts[entry.Emoji] == 1 {
			firsts[entry.Emoji] = append(firsts[entry.Emoji], entry)
		}
	}

	var out []*types.Reaction
	for _, emoji := range order {
		out = append(out, firsts[emoji]...)
	}
	return out
}

// formatEmoji renders an emoji key for an embed. Custom emojis become a link to
// their image since the bot may not share the emoji's guild.
func formatEmoji(key string) string {
	emoji := gateway.ParseEmojiKey(key)
	if !emoji.Custom() {
		return key
	}

	prefix := ""
	if emoji.Animated {
		prefix = "a"
	}
	return fmt.Sprintf("[`%s:%s:`](%s)", prefix, emoji.Name, emoji.URL())
}

// firstReactionEmbeds renders the first reactors into embeds whose
// descriptions stay under the embed limit.
func firstReactionEmbeds(firsts []*types.Reaction) []discord.Embed {
	if len(firsts) == 0 {
		return []discord.Embed{{
			Title:       firstReactionsTitle,
			Description: noReactionsMessage,
			Color:       feature.Color,
		}}
	}

	var (
		chunks []string
		chunk  strings.Builder
	)
	for _, entry := range firsts {
		line := fmt.Sprintf("%s %s by <@%d>\n",
			gateway.Timestamp(entry.Time(), "T"), formatEmoji(entry.Emoji), entry.ReactorID)

		if chunk.Len()+len(line) > maxDescription && chunk.Len() > 0 {
			chunks = append(chunks, chunk.String())
			chunk.Reset()
		}
		chunk.WriteString(line)
	}
	if chunk.Len() > 0 {
		chunks = append(chunks, chunk.String())
	}

	embeds := make([]discord.Embed, 0, len(chunks))
	for i, description := range chunks {
		embed := discord.Embed{Description: description, Color: feature.Color}
		if i == 0 {
			embed.Title = firstReactionsTitle
		}
		embeds = append(embeds, embed)
	}
	return embeds
}

// embedBatches groups embeds into messages that respect the per-message embed
// count and combined text limits.
func embedBatches(embeds []discord.Embed) [][]discord.Embed {
	var (
		batches [][]discord.Embed
		batch   []discord.Embed
		size    int
	)
	for _, embed := range embeds {
		n := utf8.RuneCountInString(embed.Title) + utf8.RuneCountInString(embed.Description)
		if len(batch) > 0 && (len(batch) == maxEmbeds || size+n > maxMessageEmbedText) {
			batches = append(batches, batch)
			batch, size = nil, 0
		}
		batch = append(batch, embed)
		size += n
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	return batches
}
