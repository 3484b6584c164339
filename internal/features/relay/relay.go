// Package relay translates messages posted in a source channel and mirrors
// them, kept in sync across edits, into a target channel.
package relay

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/ai"
	"github.com/robalyx/neurobot/internal/database"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

const (
	fieldLimit = 1000
	maxChunks  = 3
)

var emojiOnly = regexp.MustCompile(`^(<a?:\w+:\d+> *)+$`)

// Feature relays translations.
type Feature struct {
	config     *config.Config
	gateway    gateway.Gateway
	db         database.Client
	translator func(provider string) ai.Translator
	logger     *zap.Logger
}

// New creates the relay feature.
func New(deps feature.Deps) *Feature {
	return &Feature{
		config:     deps.Config,
		gateway:    deps.Gateway,
		db:         deps.DB,
		translator: deps.Translator,
		logger:     deps.Logger.Named("relay"),
	}
}

func (f *Feature) Name() string { return "relay" }

func (f *Feature) Init(ctx context.Context) error {
	return f.db.Model().Translation().CreateTable(ctx)
}

// settings returns the relay configuration when msg was posted in a relayed
// channel by a human.
func (f *Feature) settings(msg gateway.Message) (config.Relay, bool) {
	if msg.Author.Bot {
		return config.Relay{}, false
	}
	server, ok := f.config.Server(msg.GuildID).Get()
	if !ok {
		return config.Relay{}, false
	}
	relay := server.Relay
	if relay.SourceChannel == 0 || relay.TargetChannel == 0 || snowflake.ID(relay.SourceChannel) != msg.ChannelID {
		return config.Relay{}, false
	}
	return relay, true
}

func translatable(content string) bool {
	return content != "" && !emojiOnly.MatchString(content)
}

// buildEmbed renders the original and translated text as fields.
func buildEmbed(msg gateway.Message, via, translation string) *discord.EmbedBuilder {
	builder := discord.NewEmbedBuilder().
		SetColor(feature.Color).
		SetAuthor(msg.Author.Username, "", msg.Author.EffectiveAvatarURL()).
		SetDescription(fmt.Sprintf("via %s | [Jump to message](%s)", via, msg.URL()))

	for _, chunk := range capChunks(splitNearDelimiter(msg.Content, fieldLimit), fieldLimit, maxChunks) {
		builder.AddField(" ", chunk, false)
	}
	for idx, chunk := range capChunks(splitNearDelimiter(translation, fieldLimit), fieldLimit, maxChunks) {
		name := " "
		if idx == 0 {
			name = "Translation"
		}
		builder.AddField(name, chunk, false)
	}
	return builder
}

func (f *Feature) OnMessageCreate(ctx context.Context, msg gateway.Message) error {
	relay, ok := f.settings(msg)
	if !ok || !translatable(msg.Content) {
		return nil
	}

	translator := f.translator(relay.Provider)
	translation, err := translator.Translate(ctx, msg.Content)
	if err != nil {
		return fmt.Errorf("failed to translate message %d: %w", msg.ID, err)
	}

	created := msg.CreatedAt
	if created.IsZero() {
		created = msg.ID.Time()
	}
	embed := buildEmbed(msg, translator.Name(), translation).SetTimestamp(created).Build()

	target := snowflake.ID(relay.TargetChannel)
	sent, err := f.gateway.SendMessage(ctx, target, discord.NewMessageCreateBuilder().AddEmbeds(embed).Build())
	if err != nil {
		return fmt.Errorf("failed to relay translation: %w", err)
	}

	if err := f.db.Model().Translation().Insert(ctx, &types.Translation{
		MessageID:           uint64(msg.ID),
		GuildID:             uint64(msg.GuildID),
		ChannelID:           uint64(msg.ChannelID),
		TranslatedChannelID: uint64(target),
		TranslatedMessageID: uint64(sent.ID),
	}); err != nil {
		return err
	}

	f.logger.Debug("Relayed translation",
		zap.Uint64("messageID", uint64(msg.ID)),
		zap.Uint64("translatedMessageID", uint64(sent.ID)))
	return nil
}

// OnMessageUpdate re-translates an edited message and updates its relay.
func (f *Feature) OnMessageUpdate(ctx context.Context, update gateway.MessageUpdate) error {
	if !update.ContentSet {
		return nil
	}
	relay, ok := f.settings(update.Message)
	if !ok || !translatable(update.Content) {
		return nil
	}

	stored, err := f.db.Model().Translation().Get(ctx, uint64(update.ID))
	if err != nil {
		return err
	}
	mapping, ok := stored.Get()
	if !ok {
		return nil
	}

	translator := f.translator(relay.Provider)
	translation, err := translator.Translate(ctx, update.Content)
	if err != nil {
		return fmt.Errorf("failed to translate edit of %d: %w", update.ID, err)
	}

	edits, err := f.db.Model().Translation().IncrementEdits(ctx, mapping.MessageID)
	if err != nil {
		return err
	}

	edited := time.Now()
	if update.EditedAt != nil {
		edited = *update.EditedAt
	}
	embed := buildEmbed(update.Message, translator.Name(), translation).
		SetFooterText(fmt.Sprintf("Edited %dx", edits)).
		SetTimestamp(edited).
		Build()

	if _, err := f.gateway.EditMessage(ctx,
		snowflake.ID(mapping.TranslatedChannelID),
		snowflake.ID(mapping.TranslatedMessageID),
		discord.NewMessageUpdateBuilder().SetEmbeds(embed).Build(),
	); err != nil {
		return fmt.Errorf("failed to edit relayed translation: %w", err)
	}
	return nil
}
