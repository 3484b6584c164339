package twitch

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/feature"
)

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// resultsEmbed renders a finished poll with choices ordered by votes. Every
// choice with more than the average share of votes is marked as a winner.
func resultsEmbed(poll Poll) discord.Embed {
	choices := slices.Clone(poll.Choices)
	slices.SortStableFunc(choices, func(a, b Choice) int {
		return cmp.Compare(b.Votes.Total, a.Votes.Total)
	})

	average := averageVotes(poll)

	minutes := int(math.Ceil(float64(poll.DurationSeconds) / 60))
	builder := discord.NewEmbedBuilder().
		SetColor(feature.Color).
		SetTitle(poll.Title).
		SetDescription("Duration: " + plural(minutes, "minute")).
		SetFooterText(fmt.Sprintf("Total votes: %d", poll.TotalVoters))

	if !poll.EndedAt.IsZero() {
		builder.SetTimestamp(poll.EndedAt)
	}

	for _, choice := range choices {
		percentage := 0
		if poll.TotalVoters > 0 {
			percentage = int(math.Round(float64(choice.Votes.Total) / float64(poll.TotalVoters) * 100))
		}

		value := fmt.Sprintf("%s (%d%%)", plural(choice.Votes.Total, "vote"), percentage)
		if len(choices) > 0 && float64(choice.Votes.Total) > average {
			value += " (winner)"
		}
		builder.AddField(choice.Title, value, false)
	}

	return builder.Build()
}

// averageVotes is the poll's vote total spread evenly over its choices. The
// total falls back to the sum of choice votes when the payload omits it.
func averageVotes(poll Poll) float64 {
	if len(poll.Choices) == 0 {
		return 0
	}
	total := poll.Votes.Total
	if total == 0 {
		for _, choice := range poll.Choices {
			total += choice.Votes.Total
		}
	}
	return float64(total) / float64(len(poll.Choices))
}
