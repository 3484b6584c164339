package bot_test

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/gateway"
)

var errHandler = errors.New("handler failed")

// stubFeature is a configurable feature used by the registry and dispatcher tests.
type stubFeature struct {
	name       string
	commands   []string
	components []string
	initErr    error
	panics     bool
	fails      bool

	commandCalls  atomic.Int32
	messageCalls  atomic.Int32
	reactionCalls atomic.Int32
	initCalls     atomic.Int32
}

func (f *stubFeature) Name() string { return f.name }

func (f *stubFeature) Init(context.Context) error {
	f.initCalls.Add(1)
	return f.initErr
}

func (f *stubFeature) Commands() []discord.ApplicationCommandCreate {
	cmds := make([]discord.ApplicationCommandCreate, 0, len(f.commands))
	for _, name := range f.commands {
		cmds = append(cmds, discord.SlashCommandCreate{Name: name, Description: name})
	}
	return cmds
}

func (f *stubFeature) ComponentIDs() []string { return f.components }

func (f *stubFeature) outcome() error {
	if f.panics {
		panic("stub feature exploded")
	}
	if f.fails {
		return errHandler
	}
	return nil
}

func (f *stubFeature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	f.commandCalls.Add(1)
	if err := f.outcome(); err != nil {
		return err
	}
	return i.Reply(ctx, gateway.Content("ok from "+f.name))
}

func (f *stubFeature) HandleComponent(ctx context.Context, i gateway.Interaction) error {
	if err := f.outcome(); err != nil {
		return err
	}
	return i.Reply(ctx, gateway.Content("component "+i.Key()))
}

func (f *stubFeature) HandleAutocomplete(ctx context.Context, i gateway.Interaction) error {
	if err := f.outcome(); err != nil {
		return err
	}
	return i.Autocomplete(ctx, []discord.AutocompleteChoice{
		discord.AutocompleteChoiceString{Name: "one", Value: "one"},
	})
}

func (f *stubFeature) OnMessageCreate(context.Context, gateway.Message) error {
	f.messageCalls.Add(1)
	return f.outcome()
}

func (f *stubFeature) OnReaction(context.Context, gateway.Reaction) error {
	f.reactionCalls.Add(1)
	return f.outcome()
}

// inertFeature implements no handler or provider.
type inertFeature struct{}

func (inertFeature) Name() string { return "inert" }
