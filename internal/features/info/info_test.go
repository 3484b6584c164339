package info_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features/info"
	"github.com/robalyx/neurobot/internal/gateway/gatewaytest"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID    snowflake.ID = 1
	logChannel snowflake.ID = 900
	userID     snowflake.ID = 123456789012345678
)

func newFeature(gw *gatewaytest.Gateway) *info.Feature {
	return info.New(feature.Deps{
		Config: &config.Config{Servers: []config.Server{{
			GuildID: uint64(guildID),
			Info:    config.Info{LogChannel: uint64(logChannel)},
		}}},
		Gateway: gw,
		Logger:  zap.NewNop(),
	})
}

func putChannel[T discord.Channel](t *testing.T, gw *gatewaytest.Gateway, raw string) {
	t.Helper()

	var channel T
	require.NoError(t, json.Unmarshal([]byte(raw), &channel))
	gw.PutChannel(channel)
}

func TestLogInformation(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	putChannel[discord.GuildTextChannel](t, gw, `{"id":"900","type":0,"guild_id":"1","name":"mod-log"}`)
	f := newFeature(gw)

	created := time.Unix(1714564800, 0)
	edited := created.Add(time.Minute)
	target := discord.Message{
		ID:              55,
		ChannelID:       10,
		Author:          discord.User{ID: userID, Username: "chatter"},
		Content:         "hello",
		CreatedAt:       created,
		EditedTimestamp: &edited,
		Attachments:     []discord.Attachment{{Filename: "cat.png", URL: "https://cdn.example/cat.png"}},
	}

	i := gatewaytest.NewMessageCommand(guildID, info.LogCommand, target)
	require.NoError(t, f.HandleCommand(t.Context(), i))

	assert.Equal(t, "Message information sent to <#900>", i.LastContent())

	sent := gw.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, logChannel, sent[0].ChannelID)
	assert.Equal(t,
		"*Message information requested by <@42> in <#10>; [Jump to message](https://discord.com/channels/1/10/55)*",
		sent[0].Message.Content)

	embed := sent[0].Message.Embeds[0]
	assert.Equal(t, "hello", embed.Description)
	assert.Equal(t, "chatter (123456789012345678)", embed.Author.Name)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "<t:1714564800:d> <t:1714564800:T>", embed.Fields[0].Value)
	assert.Equal(t, "Edited", embed.Fields[1].Name)
	assert.Equal(t, "[cat.png](https://cdn.example/cat.png)", embed.Fields[2].Value)
}

func TestLogInformationBadChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, gw *gatewaytest.Gateway)
	}{
		{name: "missing", setup: func(*testing.T, *gatewaytest.Gateway) {}},
		{
			name: "category",
			setup: func(t *testing.T, gw *gatewaytest.Gateway) {
				putChannel[discord.GuildCategoryChannel](t, gw, `{"id":"900","type":4,"guild_id":"1","name":"logs"}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := gatewaytest.New()
			tt.setup(t, gw)
			f := newFeature(gw)

			i := gatewaytest.NewMessageCommand(guildID, info.LogCommand, discord.Message{ID: 55, ChannelID: 10})
			require.NoError(t, f.HandleCommand(t.Context(), i))

			assert.Equal(t, "An error occurred executing this interaction - output channel set incorrectly.", i.LastContent())
			assert.Empty(t, gw.Sent())
		})
	}
}

func TestAvatar(t *testing.T) {
	t.Parallel()

	userAvatar := "a1b2"
	memberAvatar := "c3d4"

	tests := []struct {
		name    string
		member  *string
		embeds  int
		content string
	}{
		{name: "with server avatar", member: &memberAvatar, embeds: 2, content: "✅ Global Avatar; ✅ Server Avatar"},
		{name: "global only", embeds: 1, content: "✅ Global Avatar; ❌ Server Avatar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := gatewaytest.New()
			gw.PutMember(guildID, discord.Member{
				User:   discord.User{ID: userID, Username: "chatter", Avatar: &userAvatar},
				Avatar: tt.member,
			})
			f := newFeature(gw)

			for _, input := range []string{"chatter", "<@123456789012345678>"} {
				i := gatewaytest.NewCommand(guildID, "avatar", "", map[string]string{"user": input})
				require.NoError(t, f.HandleCommand(t.Context(), i))

				replies := i.Replies()
				require.Len(t, replies, 1)
				assert.Equal(t, tt.content, replies[0].Content)
				require.Len(t, replies[0].Embeds, tt.embeds)
				assert.Contains(t, replies[0].Embeds[0].Image.URL, "a1b2")
			}
		})
	}
}

func TestAvatarUnknownUser(t *testing.T) {
	t.Parallel()

	f := newFeature(gatewaytest.New())
	i := gatewaytest.NewCommand(guildID, "avatar", "", map[string]string{"user": "ghost"})
	require.NoError(t, f.HandleCommand(t.Context(), i))
	assert.Equal(t, "Could not find user by username or ID", i.LastContent())
}
