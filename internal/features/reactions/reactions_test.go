package reactions_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/database"
	"github.com/robalyx/neurobot/internal/database/dbtest"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features/reactions"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/gateway/gatewaytest"
	"github.com/robalyx/neurobot/internal/scheduler"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID       snowflake.ID = 100
	channelID     snowflake.ID = 20
	messageID     snowflake.ID = 30
	notifyChannel snowflake.ID = 900
	thumbsUp                   = "👍"
	fire                       = "🔥"
	firstUser     snowflake.ID = 501
	secondUser    snowflake.ID = 502
	thirdUser     snowflake.ID = 503
)

type harness struct {
	feature *reactions.Feature
	gateway *gatewaytest.Gateway
	clock   *scheduler.ManualClock
}

func newHarness(t *testing.T, bans ...config.ReactionBan) *harness {
	t.Helper()

	cfg := &config.Config{Servers: []config.Server{{
		GuildID: uint64(guildID),
		Reactions: config.Reactions{
			Enabled:      true,
			ChannelScope: config.ScopeIgnore,
			Bans:         bans,
			Notifications: config.Notifications{
				Channel: uint64(notifyChannel),
				Groups: []config.NotificationGroup{
					{Name: "Hype", Pattern: fire, Threshold: 2, Enabled: true},
				},
			},
		},
	}}}

	clock := scheduler.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	gw := gatewaytest.New()
	f := reactions.New(feature.Deps{
		Config:    cfg,
		Gateway:   gw,
		DB:        dbtest.New(t),
		Scheduler: scheduler.New(clock, zap.NewNop()),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, f.Init(t.Context()))

	return &harness{feature: f, gateway: gw, clock: clock}
}

func (h *harness) react(t *testing.T, user snowflake.ID, emoji gateway.Emoji, added bool) {
	t.Helper()

	require.NoError(t, h.feature.OnReaction(t.Context(), gateway.Reaction{
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: messageID,
		UserID:    user,
		Emoji:     emoji,
		Added:     added,
	}))
	h.clock.Advance(time.Second)
}

func TestFirstReactorsScenario(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.react(t, firstUser, gateway.Emoji{Name: thumbsUp}, true)
	h.react(t, secondUser, gateway.Emoji{Name: thumbsUp}, true)

	i := gatewaytest.NewCommand(guildID, "reactions", "first", map[string]string{
		"message": "https://discord.com/channels/100/20/30",
	})
	require.NoError(t, h.feature.HandleCommand(t.Context(), i))

	replies := i.Replies()
	require.Len(t, replies, 1)
	require.Len(t, replies[0].Embeds, 1)

	embed := replies[0].Embeds[0]
	assert.Equal(t, "First reactions", embed.Title)
	assert.Contains(t, embed.Description, thumbsUp+" by <@501>")
	assert.NotContains(t, embed.Description, "<@502>")
}

func TestFirstReactorsFollowDeliveryOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	normalizer := gateway.NewNormalizer(scheduler.New(h.clock, zap.NewNop()))

	reaction := func(user snowflake.ID) gateway.Reaction {
		return gateway.Reaction{
			GuildID:   guildID,
			ChannelID: channelID,
			MessageID: messageID,
			UserID:    user,
			Emoji:     gateway.Emoji{Name: thumbsUp},
			Added:     true,
		}
	}

	// Both packets arrive within the same millisecond, first user first.
	early, late := reaction(firstUser), reaction(secondUser)
	require.True(t, normalizer.AcceptReaction(1, &early))
	require.True(t, normalizer.AcceptReaction(2, &late))

	// The first user's handler is scheduled last.
	require.NoError(t, h.feature.OnReaction(t.Context(), late))
	require.NoError(t, h.feature.OnReaction(t.Context(), early))

	i := gatewaytest.NewCommand(guildID, "reactions", "first", map[string]string{"message": "30"})
	require.NoError(t, h.feature.HandleCommand(t.Context(), i))

	require.Len(t, i.Replies(), 1)
	description := i.Replies()[0].Embeds[0].Description
	assert.Contains(t, description, thumbsUp+" by <@501>")
	assert.NotContains(t, description, "<@502>")
}

func TestFirstReactorsEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	i := gatewaytest.NewCommand(guildID, "reactions", "first", map[string]string{"message": "30"})
	require.NoError(t, h.feature.HandleCommand(t.Context(), i))

	require.Len(t, i.Replies(), 1)
	assert.Equal(t, "No reactions found.", i.Replies()[0].Embeds[0].Description)
}

func TestFirstReactorsTransitions(t *testing.T) {
	t.Parallel()

	entry := func(id int64, reactor uint64, emoji string, added bool) *types.Reaction {
		return &types.Reaction{ID: id, ReactorID: reactor, Emoji: emoji, Timestamp: id * 1000, Added: added}
	}

	tests := []struct {
		name    string
		entries []*types.Reaction
		want    []int64
	}{
		{
			name:    "single add",
			entries: []*types.Reaction{entry(1, 1, "a", true)},
			want:    []int64{1},
		},
		{
			name: "second reactor is not first",
			entries: []*types.Reaction{
				entry(1, 1, "a", true),
				entry(2, 2, "a", true),
			},
			want: []int64{1},
		},
		{
			name: "count returns to zero and rises again",
			entries: []*types.Reaction{
				entry(1, 1, "a", true),
				entry(2, 1, "a", false),
				entry(3, 2, "a", true),
			},
			want: []int64{1, 3},
		},
		{
			name: "drop from two to one is not a transition",
			entries: []*types.Reaction{
				entry(1, 1, "a", true),
				entry(2, 2, "a", true),
				entry(3, 1, "a", false),
			},
			want: []int64{1},
		},
		{
			name: "emojis tracked separately",
			entries: []*types.Reaction{
				entry(1, 1, "a", true),
				entry(2, 2, "b", true),
				entry(3, 3, "a", true),
			},
			want: []int64{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got []int64
			for _, e := range reactions.FirstReactors(tt.entries) {
				got = append(got, e.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBannedReactionRemoved(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.ReactionBan{Name: "pepe", Pattern: "pepe", Enabled: true})
	h.gateway.PutMessage(discord.Message{ID: messageID, ChannelID: channelID})
	h.gateway.PutMember(guildID, discord.Member{User: discord.User{ID: firstUser, Username: "reactor"}})

	h.react(t, firstUser, gateway.Emoji{ID: 123, Name: "pepeLaugh"}, true)

	removed := h.gateway.RemovedReactions()
	require.Len(t, removed, 1)
	assert.Equal(t, gatewaytest.RemovedReaction{
		ChannelID: channelID,
		MessageID: messageID,
		Emoji:     "pepeLaugh:123",
		UserID:    firstUser,
	}, removed[0])

	// Removals are logged but never enforced
	h.react(t, firstUser, gateway.Emoji{ID: 123, Name: "pepeLaugh"}, false)
	assert.Len(t, h.gateway.RemovedReactions(), 1)
}

func TestBanChannelScope(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.ReactionBan{
		Name: "pepe", Pattern: "pepe", Enabled: true, IgnoredChannels: []uint64{uint64(channelID)},
	})
	h.gateway.PutMessage(discord.Message{ID: messageID, ChannelID: channelID})
	h.gateway.PutMember(guildID, discord.Member{User: discord.User{ID: firstUser}})

	h.react(t, firstUser, gateway.Emoji{ID: 123, Name: "pepeLaugh"}, true)
	assert.Empty(t, h.gateway.RemovedReactions())
}

func TestNotificationCreatedOnceThenEdited(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	emoji := gateway.Emoji{Name: fire}

	h.react(t, firstUser, emoji, true)
	assert.Empty(t, h.gateway.Sent())

	h.react(t, secondUser, emoji, true)
	sent := h.gateway.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notifyChannel, sent[0].ChannelID)
	require.Len(t, sent[0].Message.Embeds, 1)
	assert.Contains(t, sent[0].Message.Embeds[0].Description, "**2**")

	h.react(t, thirdUser, emoji, true)
	h.react(t, firstUser, emoji, false)
	h.react(t, firstUser, emoji, true)
	assert.Len(t, h.gateway.Sent(), 1)
	assert.Equal(t, 1, h.feature.Queue().Len())

	h.feature.Queue().Drain(t.Context())
	assert.Equal(t, 0, h.feature.Queue().Len())

	edits := h.gateway.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, sent[0].ID, edits[0].MessageID)
	require.NotNil(t, edits[0].Update.Embeds)
	assert.Contains(t, (*edits[0].Update.Embeds)[0].Description, "**3**")
}

// racingGateway stores a competing notification mapping right before the
// feature's own notification is sent, as a concurrent event would.
type racingGateway struct {
	*gatewaytest.Gateway
	db   database.Client
	once sync.Once
}

func (g *racingGateway) SendMessage(
	ctx context.Context, channel snowflake.ID, msg discord.MessageCreate,
) (*discord.Message, error) {
	var raceErr error
	g.once.Do(func() {
		winner, err := g.Gateway.SendMessage(ctx, channel, msg)
		if err != nil {
			raceErr = err
			return
		}
		_, raceErr = g.db.Model().Notification().Insert(ctx, &types.ReactionNotification{
			GuildID:        uint64(guildID),
			Pattern:        fire,
			MessageID:      uint64(messageID),
			ChannelID:      uint64(channel),
			NotificationID: uint64(winner.ID),
			Count:          2,
		})
	})
	if raceErr != nil {
		return nil, raceErr
	}
	return g.Gateway.SendMessage(ctx, channel, msg)
}

func TestNotificationInsertRaceBecomesEdit(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	gw := &racingGateway{Gateway: gatewaytest.New(), db: db}
	cfg := &config.Config{Servers: []config.Server{{
		GuildID: uint64(guildID),
		Reactions: config.Reactions{
			Enabled:      true,
			ChannelScope: config.ScopeIgnore,
			Notifications: config.Notifications{
				Channel: uint64(notifyChannel),
				Groups: []config.NotificationGroup{
					{Name: "Hype", Pattern: fire, Threshold: 2, Enabled: true},
				},
			},
		},
	}}}
	clock := scheduler.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f := reactions.New(feature.Deps{
		Config:    cfg,
		Gateway:   gw,
		DB:        db,
		Scheduler: scheduler.New(clock, zap.NewNop()),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, f.Init(t.Context()))

	for _, user := range []snowflake.ID{firstUser, secondUser} {
		require.NoError(t, f.OnReaction(t.Context(), gateway.Reaction{
			GuildID:   guildID,
			ChannelID: channelID,
			MessageID: messageID,
			UserID:    user,
			Emoji:     gateway.Emoji{Name: fire},
			Added:     true,
		}))
	}

	sent := gw.Sent()
	require.Len(t, sent, 2)
	winner, duplicate := sent[0], sent[1]

	deleted := gw.Deleted()
	require.Len(t, deleted, 1)
	assert.Equal(t, duplicate.ID, deleted[0].MessageID)
	assert.Equal(t, 1, len(sent)-len(deleted))

	require.Equal(t, 1, f.Queue().Len())
	f.Queue().Drain(t.Context())

	edits := gw.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, winner.ID, edits[0].MessageID)

	mapping, err := db.Model().Notification().Get(t.Context(), uint64(guildID), fire, uint64(messageID))
	require.NoError(t, err)
	stored, ok := mapping.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(winner.ID), stored.NotificationID)
}

func TestFailedEditIsDropped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	emoji := gateway.Emoji{Name: fire}
	h.react(t, firstUser, emoji, true)
	h.react(t, secondUser, emoji, true)
	h.react(t, thirdUser, emoji, true)
	require.Equal(t, 1, h.feature.Queue().Len())

	h.gateway.FailEdit = true
	h.feature.Queue().Drain(t.Context())

	assert.Equal(t, 0, h.feature.Queue().Len())
	assert.Empty(t, h.gateway.Edits())
}

func TestBanCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	steps := []struct {
		sub     string
		options map[string]string
		want    string
	}{
		{"ban", map[string]string{"pattern": "kek", "name": "Kek"}, "Banned reactions matching `kek` as **Kek**."},
		{"ban", map[string]string{"pattern": "kek", "name": "Kek again"}, "`kek` is already banned."},
		{"ban", map[string]string{"pattern": "(", "name": "Broken"}, "Invalid pattern `(`."},
		{"unban", map[string]string{"pattern": "nope"}, "Reaction ban `nope` not found."},
		{"enable", map[string]string{"pattern": "kek"}, "Reaction ban `kek` is already enabled."},
		{"disable", map[string]string{"pattern": "kek"}, "Reaction ban `kek` disabled."},
		{"disable", map[string]string{"pattern": "kek"}, "Reaction ban `kek` is already disabled."},
		{"enable", map[string]string{"pattern": "nope"}, "Reaction ban `nope` not found."},
	}

	for _, step := range steps {
		i := gatewaytest.NewCommand(guildID, "reactions", step.sub, step.options)
		require.NoError(t, h.feature.HandleCommand(t.Context(), i))
		assert.Equal(t, step.want, i.LastContent(), "%s %v", step.sub, step.options)
	}

	list := gatewaytest.NewCommand(guildID, "reactions", "listbans", nil)
	require.NoError(t, h.feature.HandleCommand(t.Context(), list))
	embed := list.Replies()[0].Embeds[0]
	assert.Equal(t, "Reaction Bans", embed.Title)
	assert.Equal(t, "None", embed.Fields[0].Value)
	assert.Equal(t, "- Kek\n  Channels: all", embed.Fields[1].Value)

	complete := gatewaytest.NewAutocomplete(guildID, "reactions", "enable", "pattern", "ke")
	require.NoError(t, h.feature.HandleAutocomplete(t.Context(), complete))
	require.Len(t, complete.Choices(), 1)
	require.Len(t, complete.Choices()[0], 1)
	assert.Equal(t, "Kek (kek)", complete.Choices()[0][0].ChoiceName())

	complete = gatewaytest.NewAutocomplete(guildID, "reactions", "disable", "pattern", "ke")
	require.NoError(t, h.feature.HandleAutocomplete(t.Context(), complete))
	assert.Empty(t, complete.Choices()[0])

	unban := gatewaytest.NewCommand(guildID, "reactions", "unban", map[string]string{"pattern": "kek"})
	require.NoError(t, h.feature.HandleCommand(t.Context(), unban))
	assert.Equal(t, "Removed reaction ban `kek`.", unban.LastContent())
}

func TestBanTakesEffectAfterCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.gateway.PutMessage(discord.Message{ID: messageID, ChannelID: channelID})
	h.gateway.PutMember(guildID, discord.Member{User: discord.User{ID: firstUser}})

	ban := gatewaytest.NewCommand(guildID, "reactions", "ban", map[string]string{
		"pattern": "^" + thumbsUp + "$", "name": "No thumbs",
	})
	require.NoError(t, h.feature.HandleCommand(t.Context(), ban))

	h.react(t, firstUser, gateway.Emoji{Name: thumbsUp}, true)
	require.Len(t, h.gateway.RemovedReactions(), 1)
	assert.Equal(t, thumbsUp, h.gateway.RemovedReactions()[0].Emoji)
}

func TestCompilePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		key     string
		match   bool
		wantErr bool
	}{
		{name: "case insensitive", pattern: "pepe", key: "<:PepeLaugh:1>", match: true},
		{name: "no match", pattern: "pepe", key: "<:kek:1>", match: false},
		{name: "unicode escape", pattern: "$$unicode$$2764", key: "❤", match: true},
		{name: "empty token matches all", pattern: "$$empty$$", key: "anything", match: true},
		{name: "empty pattern", pattern: "", wantErr: true},
		{name: "invalid regex", pattern: "(", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			re, err := reactions.CompilePattern(tt.pattern)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.key))
		})
	}
}

func TestFirstReactionsChunking(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for n := range 150 {
		h.react(t, snowflake.ID(600+n), gateway.Emoji{ID: snowflake.ID(10_000 + n), Name: strings.Repeat("e", 20)}, true)
	}

	i := gatewaytest.NewCommand(guildID, "reactions", "first", map[string]string{"message": "30"})
	require.NoError(t, h.feature.HandleCommand(t.Context(), i))

	replies := i.Replies()
	require.Len(t, replies, 1)
	require.NotEmpty(t, i.Followups())
	messages := append(replies, i.Followups()...)

	var embeds []discord.Embed
	for _, msg := range messages {
		assert.LessOrEqual(t, len(msg.Embeds), 10)
		total := 0
		for _, embed := range msg.Embeds {
			total += utf8.RuneCountInString(embed.Title) + utf8.RuneCountInString(embed.Description)
		}
		assert.LessOrEqual(t, total, 6000)
		embeds = append(embeds, msg.Embeds...)
	}

	require.Greater(t, len(embeds), 1)
	assert.Equal(t, "First reactions", embeds[0].Title)
	for _, embed := range embeds[1:] {
		assert.Empty(t, embed.Title)
	}
	for _, embed := range embeds {
		assert.LessOrEqual(t, len(embed.Description), 3900)
	}
	assert.Contains(t, embeds[0].Description, "[`:eeeeeeeeeeeeeeeeeeee:`](https://cdn.discordapp.com/emojis/10000.png)")
	assert.Equal(t, 150, strings.Count(strings.Join(descriptions(embeds), ""), " by <@"))
}

func descriptions(embeds []discord.Embed) []string {
	out := make([]string, 0, len(embeds))
	for _, embed := range embeds {
		out = append(out, embed.Description)
	}
	return out
}
