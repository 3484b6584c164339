// Package fun holds commands with no moderation purpose.
package fun

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
)

// PetReply is the answer to /pet.
const PetReply = "aww, thank you~ ( ◡‿◡ *)"

// Feature implements /pet.
type Feature struct{}

// New creates the fun feature.
func New(feature.Deps) *Feature { return &Feature{} }

func (f *Feature) Name() string { return "fun" }

func (f *Feature) Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        "pet",
			Description: "Pets the bot.",
			Contexts:    feature.Anywhere,
		},
	}
}

func (f *Feature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	return i.Reply(ctx, gateway.Content(PetReply))
}
