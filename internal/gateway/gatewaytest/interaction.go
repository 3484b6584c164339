package gatewaytest

import (
	"context"
	"slices"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/samber/mo"
)

// Interaction is a recording Interaction. Replies, followups and edits are
// captured so tests can assert on what the user would have seen.
type Interaction struct {
	mu sync.Mutex

	KindValue    gateway.InteractionKind
	KeyValue     string
	Sub          string
	Guild        snowflake.ID
	Invoker      discord.User
	Options      map[string]string
	FocusedName  string
	FocusedValue string
	Target       *discord.Message

	// FailReply makes Reply return ErrInjected.
	FailReply bool
	// FailEditReply makes EditReply return ErrInjected for matching updates.
	FailEditReply func(msg discord.MessageUpdate) bool

	replies   []discord.MessageCreate
	followups []discord.MessageCreate
	edits     []discord.MessageUpdate
	failed    []discord.MessageUpdate
	choices   [][]discord.AutocompleteChoice
	deferred  bool
	ephemeral bool
	acked     bool
}

var _ gateway.Interaction = (*Interaction)(nil)

// NewCommand creates a slash command interaction.
func NewCommand(guildID snowflake.ID, name, sub string, options map[string]string) *Interaction {
	return &Interaction{
		KindValue: gateway.KindCommand,
		KeyValue:  name,
		Sub:       sub,
		Guild:     guildID,
		Invoker:   discord.User{ID: 42, Username: "moderator"},
		Options:   options,
	}
}

// NewAutocomplete creates an autocomplete interaction focused on option name.
func NewAutocomplete(guildID snowflake.ID, command, sub, name, value string) *Interaction {
	i := NewCommand(guildID, command, sub, map[string]string{name: value})
	i.KindValue = gateway.KindAutocomplete
	i.FocusedName = name
	i.FocusedValue = value
	return i
}

// NewMessageCommand creates a message context menu interaction.
func NewMessageCommand(guildID snowflake.ID, name string, target discord.Message) *Interaction {
	i := NewCommand(guildID, name, "", nil)
	i.KindValue = gateway.KindMessageCommand
	i.Target = &target
	return i
}

// NewComponent creates a component interaction with the given custom ID.
func NewComponent(guildID snowflake.ID, customID string) *Interaction {
	i := NewCommand(guildID, customID, "", nil)
	i.KindValue = gateway.KindComponent
	return i
}

func (i *Interaction) Kind() gateway.InteractionKind { return i.KindValue }
func (i *Interaction) Key() string                   { return i.KeyValue }
func (i *Interaction) SubCommand() string            { return i.Sub }
func (i *Interaction) GuildID() snowflake.ID         { return i.Guild }
func (i *Interaction) User() discord.User            { return i.Invoker }

func (i *Interaction) String(name string) (string, bool) {
	value, ok := i.Options[name]
	return value, ok
}

func (i *Interaction) Focused() (string, string) {
	return i.FocusedName, i.FocusedValue
}

func (i *Interaction) TargetMessage() mo.Option[discord.Message] {
	if i.Target == nil {
		return mo.None[discord.Message]()
	}
	return mo.Some(*i.Target)
}

func (i *Interaction) Reply(_ context.Context, msg discord.MessageCreate) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.FailReply {
		return ErrInjected
	}
	i.replies = append(i.replies, msg)
	i.acked = true
	return nil
}

func (i *Interaction) Defer(_ context.Context, ephemeral bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.deferred = true
	i.ephemeral = ephemeral
	i.acked = true
	return nil
}

func (i *Interaction) Followup(_ context.Context, msg discord.MessageCreate) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.followups = append(i.followups, msg)
	return nil
}

func (i *Interaction) EditReply(_ context.Context, msg discord.MessageUpdate) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.FailEditReply != nil && i.FailEditReply(msg) {
		i.failed = append(i.failed, msg)
		return ErrInjected
	}
	i.edits = append(i.edits, msg)
	return nil
}

func (i *Interaction) Autocomplete(_ context.Context, choices []discord.AutocompleteChoice) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if choices == nil {
		choices = []discord.AutocompleteChoice{}
	}
	i.choices = append(i.choices, choices)
	i.acked = true
	return nil
}

func (i *Interaction) Acknowledged() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.acked
}

// Replies returns the initial responses sent.
func (i *Interaction) Replies() []discord.MessageCreate {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.replies)
}

// Followups returns the followup messages sent.
func (i *Interaction) Followups() []discord.MessageCreate {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.followups)
}

// Edits returns the edits of the original response.
func (i *Interaction) Edits() []discord.MessageUpdate {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.edits)
}

// FailedEdits returns the edits rejected by FailEditReply.
func (i *Interaction) FailedEdits() []discord.MessageUpdate {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.failed)
}

// Choices returns every autocomplete answer sent.
func (i *Interaction) Choices() [][]discord.AutocompleteChoice {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.choices)
}

// Deferred reports whether the interaction was deferred and if so whether ephemerally.
func (i *Interaction) Deferred() (deferred bool, ephemeral bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.deferred, i.ephemeral
}

// LastContent returns the content of the most recent reply or followup.
func (i *Interaction) LastContent() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if n := len(i.followups); n > 0 {
		return i.followups[n-1].Content
	}
	if n := len(i.replies); n > 0 {
		return i.replies[n-1].Content
	}
	return ""
}
