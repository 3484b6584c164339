package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	disgateway "github.com/disgoorg/disgo/gateway"
	"github.com/robalyx/neurobot/internal/gateway"
	"go.uber.org/zap"
)

// Bot owns the Discord connection and feeds normalized events to the dispatcher.
// Every gateway event is handled on its own goroutine.
type Bot struct {
	ctx        context.Context
	client     bot.Client
	gateway    *gateway.Client
	registry   *Registry
	dispatcher atomic.Pointer[Dispatcher]
	normalizer *gateway.Normalizer
	ready      atomic.Bool
	initOnce   sync.Once
	logger     *zap.Logger
}

// New creates the Discord client. Events are dropped until features are initialized.
// ctx is the process context every dispatch derives from.
func New(ctx context.Context, token string, normalizer *gateway.Normalizer, logger *zap.Logger) (*Bot, error) {
	b := &Bot{
		ctx:        ctx,
		normalizer: normalizer,
		logger:     logger.Named("bot"),
	}

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			disgateway.WithIntents(
				disgateway.IntentGuilds,
				disgateway.IntentGuildMembers,
				disgateway.IntentGuildMessages,
				disgateway.IntentGuildMessageReactions,
				disgateway.IntentGuildVoiceStates,
				disgateway.IntentMessageContent,
				disgateway.IntentAutoModerationExecution,
			),
			disgateway.WithEnableRawEvents(true),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(
				cache.FlagGuilds,
				cache.FlagMembers,
				cache.FlagRoles,
				cache.FlagChannels,
				cache.FlagMessages,
			),
		),
		bot.WithEventListenerFunc(b.onReady),
		bot.WithEventListenerFunc(b.onApplicationCommand),
		bot.WithEventListenerFunc(b.onAutocomplete),
		bot.WithEventListenerFunc(b.onComponent),
		bot.WithEventListenerFunc(b.onGuildMessageCreate),
		bot.WithEventListenerFunc(b.onGuildMessageUpdate),
		bot.WithEventListenerFunc(b.onReactionAdd),
		bot.WithEventListenerFunc(b.onReactionRemove),
		bot.WithEventListenerFunc(b.onMemberUpdate),
		bot.WithEventListenerFunc(b.onVoiceStateUpdate),
		bot.WithEventListenerFunc(b.onRaw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	b.client = client
	b.gateway = gateway.NewClient(client, logger)
	return b, nil
}

// Client returns the underlying disgo client.
func (b *Bot) Client() bot.Client {
	return b.client
}

// Gateway returns the gateway adapter features talk to.
func (b *Bot) Gateway() *gateway.Client {
	return b.gateway
}

// Ready reports whether the gateway is connected and features are initialized.
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// Start opens the gateway. Features in registry are initialized once the
// first READY arrives, and events reach them only after that.
func (b *Bot) Start(registry *Registry) error {
	b.registry = registry

	b.logger.Info("Opening gateway")
	if err := b.client.OpenGateway(b.ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	return nil
}

// Close shuts down the gateway connection.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.ready.Store(false)
	b.client.Close(ctx)
}

// handle runs fn on its own goroutine once the dispatcher is installed.
func (b *Bot) handle(fn func(d *Dispatcher)) {
	d := b.dispatcher.Load()
	if d == nil {
		return
	}
	go fn(d)
}

func (b *Bot) onReady(e *events.Ready) {
	b.logger.Info("Gateway ready",
		zap.String("user", e.User.Username),
		zap.Int("guilds", len(e.Guilds)))

	b.initOnce.Do(func() {
		go b.initFeatures()
	})
}

// initFeatures loads every feature and then installs the dispatcher. Events
// arriving before this returns are dropped.
func (b *Bot) initFeatures() {
	b.registry.Init(b.ctx)
	b.dispatcher.Store(NewDispatcher(b.registry, b.logger))
	b.ready.Store(true)
	b.logger.Info("Features initialized, dispatching events")
}

func (b *Bot) onApplicationCommand(e *events.ApplicationCommandInteractionCreate) {
	b.handle(func(d *Dispatcher) {
		d.DispatchInteraction(b.ctx, gateway.FromApplicationCommand(e))
	})
}

func (b *Bot) onAutocomplete(e *events.AutocompleteInteractionCreate) {
	b.handle(func(d *Dispatcher) {
		d.DispatchInteraction(b.ctx, gateway.FromAutocomplete(e))
	})
}

func (b *Bot) onComponent(e *events.ComponentInteractionCreate) {
	b.handle(func(d *Dispatcher) {
		d.DispatchInteraction(b.ctx, gateway.FromComponent(e))
	})
}

func (b *Bot) onGuildMessageCreate(e *events.GuildMessageCreate) {
	msg := gateway.FromGuildMessageCreate(e)
	if !b.normalizer.AcceptMessage(e.SequenceNumber(), msg) {
		return
	}
	b.handle(func(d *Dispatcher) {
		d.DispatchMessageCreate(b.ctx, msg)
	})
}

func (b *Bot) onGuildMessageUpdate(e *events.GuildMessageUpdate) {
	update := gateway.FromGuildMessageUpdate(e)
	if !b.normalizer.AcceptMessageUpdate(e.SequenceNumber(), update) {
		return
	}
	b.handle(func(d *Dispatcher) {
		d.DispatchMessageUpdate(b.ctx, update)
	})
}

func (b *Bot) onReactionAdd(e *events.GuildMessageReactionAdd) {
	b.dispatchReaction(e.SequenceNumber(), gateway.FromReactionAdd(e))
}

func (b *Bot) onReactionRemove(e *events.GuildMessageReactionRemove) {
	b.dispatchReaction(e.SequenceNumber(), gateway.FromReactionRemove(e))
}

func (b *Bot) dispatchReaction(seq int, reaction gateway.Reaction) {
	if !b.normalizer.AcceptReaction(seq, &reaction) {
		return
	}
	b.handle(func(d *Dispatcher) {
		d.DispatchReaction(b.ctx, reaction)
	})
}

func (b *Bot) onMemberUpdate(e *events.GuildMemberUpdate) {
	update := gateway.FromMemberUpdate(e)
	b.handle(func(d *Dispatcher) {
		d.DispatchMemberUpdate(b.ctx, update)
	})
}

func (b *Bot) onVoiceStateUpdate(e *events.GuildVoiceStateUpdate) {
	update := gateway.FromVoiceStateUpdate(e)
	b.handle(func(d *Dispatcher) {
		d.DispatchVoiceStateUpdate(b.ctx, update)
	})
}

// onRaw consumes the raw form of packets whose structured event is unreliable
// for uncached messages. The normalizer drops whichever form arrives second.
func (b *Bot) onRaw(e *events.Raw) {
	seq := e.SequenceNumber()

	switch e.EventType {
	case gateway.RawMessageReactionAdd, gateway.RawMessageReactionRemove:
		reaction, err := gateway.DecodeRawReaction(e.EventType, e.Payload)
		if err != nil {
			b.logRawError(e, err)
			return
		}
		b.dispatchReaction(seq, reaction)

	case gateway.RawMessageCreate:
		update, err := gateway.DecodeRawMessage(e.Payload)
		if err != nil {
			b.logRawError(e, err)
			return
		}
		if !b.normalizer.AcceptMessage(seq, update.Message) {
			return
		}
		b.handle(func(d *Dispatcher) {
			d.DispatchMessageCreate(b.ctx, update.Message)
		})

	case gateway.RawMessageUpdate:
		update, err := gateway.DecodeRawMessage(e.Payload)
		if err != nil {
			b.logRawError(e, err)
			return
		}
		if !b.normalizer.AcceptMessageUpdate(seq, update) {
			return
		}
		b.handle(func(d *Dispatcher) {
			d.DispatchMessageUpdate(b.ctx, update)
		})

	case gateway.RawAutoModerationExecuted:
		action, err := gateway.DecodeRawAutoMod(e.Payload)
		if err != nil {
			b.logRawError(e, err)
			return
		}
		b.handle(func(d *Dispatcher) {
			d.DispatchAutoModAction(b.ctx, action)
		})
	}
}

func (b *Bot) logRawError(e *events.Raw, err error) {
	if errors.Is(err, gateway.ErrNotGuildEvent) {
		return
	}
	b.logger.Warn("Failed to decode raw packet",
		zap.String("type", string(e.EventType)),
		zap.Error(err))
}
