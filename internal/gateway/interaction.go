package gateway

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/samber/mo"
)

// ErrNotSupported is returned when a response does not apply to the interaction kind.
var ErrNotSupported = errors.New("response not supported for this interaction")

// InteractionKind identifies how an interaction was invoked.
type InteractionKind int

const (
	KindCommand InteractionKind = iota
	KindMessageCommand
	KindUserCommand
	KindAutocomplete
	KindComponent
)

// String returns the kind name used for logs and spans.
func (k InteractionKind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindMessageCommand:
		return "message_command"
	case KindUserCommand:
		return "user_command"
	case KindAutocomplete:
		return "autocomplete"
	case KindComponent:
		return "component"
	default:
		return "unknown"
	}
}

// Interaction is a user invocation routed to a feature. Key is the command
// name for commands and autocomplete, or the custom ID for components.
type Interaction interface {
	Kind() InteractionKind
	Key() string
	SubCommand() string
	GuildID() snowflake.ID
	User() discord.User

	// String returns a string option of a slash command or autocomplete.
	String(name string) (string, bool)
	// Focused returns the option being typed into during autocomplete.
	Focused() (name string, value string)
	// TargetMessage returns the message a message context menu was used on.
	TargetMessage() mo.Option[discord.Message]

	Reply(ctx context.Context, msg discord.MessageCreate) error
	Defer(ctx context.Context, ephemeral bool) error
	Followup(ctx context.Context, msg discord.MessageCreate) error
	EditReply(ctx context.Context, msg discord.MessageUpdate) error
	Autocomplete(ctx context.Context, choices []discord.AutocompleteChoice) error
	Acknowledged() bool
}

type disgoInteraction struct {
	client        bot.Client
	applicationID snowflake.ID
	token         string
	kind          InteractionKind
	key           string
	subCommand    string
	guildID       snowflake.ID
	user          discord.User
	options       func(name string) (string, bool)
	focusedName   string
	focusedValue  string
	target        *discord.Message
	acknowledged  atomic.Bool

	createMessage func(discord.MessageCreate, ...rest.RequestOpt) error
	deferMessage  func(bool, ...rest.RequestOpt) error
	autocomplete  func([]discord.AutocompleteChoice, ...rest.RequestOpt) error
}

func newDisgoInteraction(
	client bot.Client, applicationID snowflake.ID, token string, guildID *snowflake.ID, user discord.User,
) *disgoInteraction {
	i := &disgoInteraction{
		client:        client,
		applicationID: applicationID,
		token:         token,
		user:          user,
		options:       func(string) (string, bool) { return "", false },
	}
	if guildID != nil {
		i.guildID = *guildID
	}
	return i
}

// FromApplicationCommand wraps a slash or context menu command event.
func FromApplicationCommand(e *events.ApplicationCommandInteractionCreate) Interaction {
	i := newDisgoInteraction(e.Client(), e.ApplicationID(), e.Token(), e.GuildID(), e.User())
	i.createMessage = e.CreateMessage
	i.deferMessage = e.DeferCreateMessage

	switch data := e.Data.(type) {
	case discord.SlashCommandInteractionData:
		i.kind = KindCommand
		i.key = data.CommandName()
		if data.SubCommandName != nil {
			i.subCommand = *data.SubCommandName
		}
		i.options = data.OptString
	case discord.MessageCommandInteractionData:
		i.kind = KindMessageCommand
		i.key = data.CommandName()
		target := data.TargetMessage()
		i.target = &target
	case discord.UserCommandInteractionData:
		i.kind = KindUserCommand
		i.key = data.CommandName()
	}
	return i
}

// FromAutocomplete wraps an autocomplete event.
func FromAutocomplete(e *events.AutocompleteInteractionCreate) Interaction {
	i := newDisgoInteraction(e.Client(), e.ApplicationID(), e.Token(), e.GuildID(), e.User())
	i.kind = KindAutocomplete
	i.key = e.Data.CommandName
	if e.Data.SubCommandName != nil {
		i.subCommand = *e.Data.SubCommandName
	}
	i.options = e.Data.OptString
	i.focusedName = e.Data.Focused().Name
	i.focusedValue, _ = e.Data.OptString(i.focusedName)
	i.autocomplete = e.AutocompleteResult
	return i
}

// FromComponent wraps a button or select menu event.
func FromComponent(e *events.ComponentInteractionCreate) Interaction {
	i := newDisgoInteraction(e.Client(), e.ApplicationID(), e.Token(), e.GuildID(), e.User())
	i.kind = KindComponent
	i.key = e.Data.CustomID()
	i.target = &e.Message
	i.createMessage = e.CreateMessage
	i.deferMessage = e.DeferCreateMessage
	return i
}

func (i *disgoInteraction) Kind() InteractionKind { return i.kind }
func (i *disgoInteraction) Key() string           { return i.key }
func (i *disgoInteraction) SubCommand() string    { return i.subCommand }
func (i *disgoInteraction) GuildID() snowflake.ID { return i.guildID }
func (i *disgoInteraction) User() discord.User    { return i.user }
func (i *disgoInteraction) Acknowledged() bool    { return i.acknowledged.Load() }

func (i *disgoInteraction) String(name string) (string, bool) {
	return i.options(name)
}

func (i *disgoInteraction) Focused() (string, string) {
	return i.focusedName, i.focusedValue
}

func (i *disgoInteraction) TargetMessage() mo.Option[discord.Message] {
	if i.target == nil {
		return mo.None[discord.Message]()
	}
	return mo.Some(*i.target)
}

func (i *disgoInteraction) Reply(ctx context.Context, msg discord.MessageCreate) error {
	if i.createMessage == nil {
		return ErrNotSupported
	}
	if err := i.createMessage(msg, rest.WithCtx(ctx)); err != nil {
		return err
	}
	i.acknowledged.Store(true)
	return nil
}

func (i *disgoInteraction) Defer(ctx context.Context, ephemeral bool) error {
	if i.deferMessage == nil {
		return ErrNotSupported
	}
	if err := i.deferMessage(ephemeral, rest.WithCtx(ctx)); err != nil {
		return err
	}
	i.acknowledged.Store(true)
	return nil
}

func (i *disgoInteraction) Followup(ctx context.Context, msg discord.MessageCreate) error {
	_, err := i.client.Rest().CreateFollowupMessage(i.applicationID, i.token, msg, rest.WithCtx(ctx))
	return err
}

func (i *disgoInteraction) EditReply(ctx context.Context, msg discord.MessageUpdate) error {
	_, err := i.client.Rest().UpdateInteractionResponse(i.applicationID, i.token, msg, rest.WithCtx(ctx))
	return err
}

func (i *disgoInteraction) Autocomplete(ctx context.Context, choices []discord.AutocompleteChoice) error {
	if i.autocomplete == nil {
		return ErrNotSupported
	}
	if choices == nil {
		choices = []discord.AutocompleteChoice{}
	}
	if err := i.autocomplete(choices, rest.WithCtx(ctx)); err != nil {
		return err
	}
	i.acknowledged.Store(true)
	return nil
}

// Ephemeral builds a message only the invoking user can see.
func Ephemeral(content string) discord.MessageCreate {
	return discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build()
}

// Content builds a plain message.
func Content(content string) discord.MessageCreate {
	return discord.NewMessageCreateBuilder().
		SetContent(content).
		Build()
}
