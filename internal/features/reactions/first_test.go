package reactions

import (
	"strings"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/stretchr/testify/assert"
)

func TestEmbedBatches(t *testing.T) {
	t.Parallel()

	sized := func(count, size int) []discord.Embed {
		embeds := make([]discord.Embed, count)
		for n := range embeds {
			embeds[n].Description = strings.Repeat("x", size)
		}
		return embeds
	}
	lengths := func(batches [][]discord.Embed) []int {
		out := make([]int, 0, len(batches))
		for _, batch := range batches {
			out = append(out, len(batch))
		}
		return out
	}

	tests := []struct {
		name   string
		embeds []discord.Embed
		want   []int
	}{
		{name: "empty", embeds: nil, want: []int{}},
		{name: "embed count limit", embeds: sized(12, 100), want: []int{10, 2}},
		{name: "text fits exactly", embeds: sized(3, 3000), want: []int{2, 1}},
		{name: "text over limit", embeds: sized(3, 3900), want: []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, lengths(embedBatches(tt.embeds)))
		})
	}
}
