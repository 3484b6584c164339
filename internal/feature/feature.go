// Package feature defines the contract between the dispatcher and the bot's
// features. A feature implements Feature plus any of the handler interfaces.
package feature

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/gateway"
)

// Feature is a self-contained unit of bot behavior.
type Feature interface {
	Name() string
}

// Initializer is implemented by features that prepare state once the
// gateway is ready.
type Initializer interface {
	Init(ctx context.Context) error
}

// CommandProvider declares application commands. Command names double as
// routing keys.
type CommandProvider interface {
	Commands() []discord.ApplicationCommandCreate
}

// ComponentProvider declares the custom IDs, or custom ID prefixes before
// ':', of the components a feature owns.
type ComponentProvider interface {
	ComponentIDs() []string
}

// CommandHandler handles slash and context menu commands.
type CommandHandler interface {
	HandleCommand(ctx context.Context, i gateway.Interaction) error
}

// AutocompleteHandler answers autocomplete requests.
type AutocompleteHandler interface {
	HandleAutocomplete(ctx context.Context, i gateway.Interaction) error
}

// ComponentHandler handles buttons and select menus.
type ComponentHandler interface {
	HandleComponent(ctx context.Context, i gateway.Interaction) error
}

// MessageCreateHandler receives every guild message.
type MessageCreateHandler interface {
	OnMessageCreate(ctx context.Context, msg gateway.Message) error
}

// MessageUpdateHandler receives guild message edits.
type MessageUpdateHandler interface {
	OnMessageUpdate(ctx context.Context, update gateway.MessageUpdate) error
}

// ReactionHandler receives reaction additions and removals.
type ReactionHandler interface {
	OnReaction(ctx context.Context, reaction gateway.Reaction) error
}

// MemberUpdateHandler receives guild member updates.
type MemberUpdateHandler interface {
	OnMemberUpdate(ctx context.Context, update gateway.MemberUpdate) error
}

// VoiceStateHandler receives voice state updates.
type VoiceStateHandler interface {
	OnVoiceStateUpdate(ctx context.Context, update gateway.VoiceStateUpdate) error
}

// AutoModHandler receives auto-moderation action executions.
type AutoModHandler interface {
	OnAutoModAction(ctx context.Context, action gateway.AutoModAction) error
}

// Handles reports whether f implements at least one handler interface or
// provider, which is what makes it routable.
func Handles(f Feature) bool {
	switch f.(type) {
	case Initializer, CommandProvider, ComponentProvider,
		CommandHandler, AutocompleteHandler, ComponentHandler,
		MessageCreateHandler, MessageUpdateHandler, ReactionHandler,
		MemberUpdateHandler, VoiceStateHandler, AutoModHandler:
		return true
	default:
		return false
	}
}
