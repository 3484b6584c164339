package bot

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Generic replies shown when a command or component fails.
const (
	CommandErrorMessage     = "An error occurred executing this command."
	InteractionErrorMessage = "An error occurred executing this interaction."
)

// Dispatcher routes interactions to their owning feature and broadcasts
// gateway events to every feature that handles them. Each handler call is
// isolated so a failure or panic in one feature never reaches another.
type Dispatcher struct {
	registry *Registry
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tracer:   otel.Tracer("github.com/robalyx/neurobot/internal/bot"),
		logger:   logger.Named("dispatcher"),
	}
}

// run calls fn, turning a panic into an error.
func run(fn func() error) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = fn()
	})
	if recovered := catcher.Recovered(); recovered != nil {
		return recovered.AsError()
	}
	return err
}

// DispatchInteraction routes an interaction by its kind and key.
func (d *Dispatcher) DispatchInteraction(ctx context.Context, i gateway.Interaction) {
	ctx, span := d.tracer.Start(ctx, "interaction."+i.Kind().String(), trace.WithAttributes(
		attribute.String("key", i.Key()),
		attribute.String("subcommand", i.SubCommand()),
		attribute.Int64("guild_id", int64(i.GuildID())),
	))
	defer span.End()

	start := time.Now()
	logger := d.logger.With(
		zap.Stringer("kind", i.Kind()),
		zap.String("key", i.Key()),
		zap.String("subcommand", i.SubCommand()),
		zap.Uint64("guildID", uint64(i.GuildID())),
		zap.Uint64("userID", uint64(i.User().ID)))

	var err error
	switch i.Kind() {
	case gateway.KindAutocomplete:
		err = d.autocomplete(ctx, i, logger)
	case gateway.KindComponent:
		err = d.component(ctx, i, logger)
	case gateway.KindCommand, gateway.KindMessageCommand, gateway.KindUserCommand:
		err = d.command(ctx, i, logger)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	logger.Debug("Interaction handled", zap.Duration("duration", time.Since(start)))
}

func (d *Dispatcher) command(ctx context.Context, i gateway.Interaction, logger *zap.Logger) error {
	f, ok := d.registry.Command(i.Key())
	handler, isHandler := f.(feature.CommandHandler)
	if !ok || !isHandler {
		logger.Warn("No feature handles command")
		d.replyError(ctx, i, CommandErrorMessage, logger)
		return nil
	}

	if err := run(func() error { return handler.HandleCommand(ctx, i) }); err != nil {
		logger.Error("Command failed", zap.String("feature", f.Name()), zap.Error(err))
		d.replyError(ctx, i, CommandErrorMessage, logger)
		return err
	}
	return nil
}

func (d *Dispatcher) component(ctx context.Context, i gateway.Interaction, logger *zap.Logger) error {
	f, ok := d.registry.Component(i.Key())
	handler, isHandler := f.(feature.ComponentHandler)
	if !ok || !isHandler {
		logger.Warn("No feature handles component")
		d.replyError(ctx, i, InteractionErrorMessage, logger)
		return nil
	}

	if err := run(func() error { return handler.HandleComponent(ctx, i) }); err != nil {
		logger.Error("Component failed", zap.String("feature", f.Name()), zap.Error(err))
		d.replyError(ctx, i, InteractionErrorMessage, logger)
		return err
	}
	return nil
}

func (d *Dispatcher) autocomplete(ctx context.Context, i gateway.Interaction, logger *zap.Logger) error {
	f, ok := d.registry.Command(i.Key())
	handler, isHandler := f.(feature.AutocompleteHandler)
	if !ok || !isHandler {
		logger.Warn("No feature handles autocomplete")
		d.emptyChoices(ctx, i, logger)
		return nil
	}

	if err := run(func() error { return handler.HandleAutocomplete(ctx, i) }); err != nil {
		logger.Error("Autocomplete failed", zap.String("feature", f.Name()), zap.Error(err))
		if !i.Acknowledged() {
			d.emptyChoices(ctx, i, logger)
		}
		return err
	}
	return nil
}

// replyError sends the generic ephemeral error, as a followup when the
// interaction was already answered or deferred.
func (d *Dispatcher) replyError(ctx context.Context, i gateway.Interaction, message string, logger *zap.Logger) {
	msg := gateway.Ephemeral(message)

	var err error
	if i.Acknowledged() {
		err = i.Followup(ctx, msg)
	} else {
		err = i.Reply(ctx, msg)
	}
	if err != nil {
		logger.Error("Failed to send error reply", zap.Error(err))
	}
}

func (d *Dispatcher) emptyChoices(ctx context.Context, i gateway.Interaction, logger *zap.Logger) {
	if err := i.Autocomplete(ctx, []discord.AutocompleteChoice{}); err != nil {
		logger.Error("Failed to send empty autocomplete", zap.Error(err))
	}
}

// broadcast calls handle on every active feature implementing H.
func broadcast[H any](d *Dispatcher, ctx context.Context, event string, handle func(context.Context, H) error) {
	ctx, span := d.tracer.Start(ctx, "event."+event)
	defer span.End()

	for _, f := range d.registry.Features() {
		handler, ok := f.(H)
		if !ok {
			continue
		}

		featureCtx, featureSpan := d.tracer.Start(ctx, f.Name())
		if err := run(func() error { return handle(featureCtx, handler) }); err != nil {
			featureSpan.RecordError(err)
			featureSpan.SetStatus(codes.Error, err.Error())
			d.logger.Error("Event handler failed",
				zap.String("event", event),
				zap.String("feature", f.Name()),
				zap.Error(err))
		}
		featureSpan.End()
	}
}

// DispatchMessageCreate broadcasts a new message.
func (d *Dispatcher) DispatchMessageCreate(ctx context.Context, msg gateway.Message) {
	broadcast(d, ctx, "message_create", func(ctx context.Context, h feature.MessageCreateHandler) error {
		return h.OnMessageCreate(ctx, msg)
	})
}

// DispatchMessageUpdate broadcasts a message edit.
func (d *Dispatcher) DispatchMessageUpdate(ctx context.Context, update gateway.MessageUpdate) {
	broadcast(d, ctx, "message_update", func(ctx context.Context, h feature.MessageUpdateHandler) error {
		return h.OnMessageUpdate(ctx, update)
	})
}

// DispatchReaction broadcasts a reaction add or remove.
func (d *Dispatcher) DispatchReaction(ctx context.Context, reaction gateway.Reaction) {
	broadcast(d, ctx, "reaction", func(ctx context.Context, h feature.ReactionHandler) error {
		return h.OnReaction(ctx, reaction)
	})
}

// DispatchMemberUpdate broadcasts a member update.
func (d *Dispatcher) DispatchMemberUpdate(ctx context.Context, update gateway.MemberUpdate) {
	broadcast(d, ctx, "member_update", func(ctx context.Context, h feature.MemberUpdateHandler) error {
		return h.OnMemberUpdate(ctx, update)
	})
}

// DispatchVoiceStateUpdate broadcasts a voice state update.
func (d *Dispatcher) DispatchVoiceStateUpdate(ctx context.Context, update gateway.VoiceStateUpdate) {
	broadcast(d, ctx, "voice_state_update", func(ctx context.Context, h feature.VoiceStateHandler) error {
		return h.OnVoiceStateUpdate(ctx, update)
	})
}

// DispatchAutoModAction broadcasts an auto-moderation action execution.
func (d *Dispatcher) DispatchAutoModAction(ctx context.Context, action gateway.AutoModAction) {
	broadcast(d, ctx, "automod_action", func(ctx context.Context, h feature.AutoModHandler) error {
		return h.OnAutoModAction(ctx, action)
	})
}
