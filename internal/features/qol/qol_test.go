package qol_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features/qol"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/gateway/gatewaytest"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID        snowflake.ID = 1
	generalChannel snowflake.ID = 10
	quietChannel   snowflake.ID = 11
	alertChannel   snowflake.ID = 12
	subRole        snowflake.ID = 40
	minecraftRole  snowflake.ID = 41
)

func newFeature(t *testing.T, gw *gatewaytest.Gateway, server config.Server, opts ...qol.Option) *qol.Feature {
	t.Helper()

	server.GuildID = uint64(guildID)
	f := qol.New(feature.Deps{
		Config:  &config.Config{Servers: []config.Server{server}},
		Gateway: gw,
		Logger:  zap.NewNop(),
	}, opts...)
	require.NoError(t, f.Init(t.Context()))
	return f
}

func TestEssaying(t *testing.T) {
	t.Parallel()

	server := config.Server{QOL: config.QOL{Essaying: config.Essaying{
		Emote:           "<:essay:123456789012345678>",
		Threshold:       20,
		IgnoredChannels: []uint64{uint64(quietChannel)},
	}}}

	tests := []struct {
		name    string
		msg     gateway.Message
		reacted bool
	}{
		{
			name:    "long message",
			msg:     gateway.Message{ChannelID: generalChannel, Content: strings.Repeat("a", 20)},
			reacted: true,
		},
		{
			name: "short message",
			msg:  gateway.Message{ChannelID: generalChannel, Content: strings.Repeat("a", 19)},
		},
		{
			name: "counts characters not bytes",
			msg:  gateway.Message{ChannelID: generalChannel, Content: strings.Repeat("é", 19)},
		},
		{
			name: "ignored channel",
			msg:  gateway.Message{ChannelID: quietChannel, Content: strings.Repeat("a", 50)},
		},
		{
			name: "bot author",
			msg: gateway.Message{
				ChannelID: generalChannel, Content: strings.Repeat("a", 50), Author: discord.User{Bot: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := gatewaytest.New()
			f := newFeature(t, gw, server)

			msg := tt.msg
			msg.ID = 99
			msg.GuildID = guildID
			require.NoError(t, f.OnMessageCreate(t.Context(), msg))

			reactions := gw.AddedReactions()
			if !tt.reacted {
				assert.Empty(t, reactions)
				return
			}
			require.Len(t, reactions, 1)
			assert.Equal(t, gatewaytest.AddedReaction{
				ChannelID: generalChannel, MessageID: 99, Emoji: "essay:123456789012345678",
			}, reactions[0])
		})
	}
}

func TestMinecraftFix(t *testing.T) {
	t.Parallel()

	server := config.Server{QOL: config.QOL{MinecraftFix: config.MinecraftFix{
		SubRole: uint64(subRole), MinecraftRole: uint64(minecraftRole),
	}}}

	tests := []struct {
		name    string
		roles   []snowflake.ID
		removed bool
	}{
		{name: "non-subscriber", roles: []snowflake.ID{minecraftRole}, removed: true},
		{name: "subscriber", roles: []snowflake.ID{minecraftRole, subRole}},
		{name: "no minecraft role", roles: []snowflake.ID{subRole}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := gatewaytest.New()
			gw.PutRole(guildID, discord.Role{ID: subRole})
			gw.PutRole(guildID, discord.Role{ID: minecraftRole})
			f := newFeature(t, gw, server)

			require.NoError(t, f.OnMemberUpdate(t.Context(), gateway.MemberUpdate{
				GuildID: guildID,
				Member:  discord.Member{User: discord.User{ID: 7}, RoleIDs: tt.roles},
			}))

			changes := gw.RoleChanges()
			if !tt.removed {
				assert.Empty(t, changes)
				return
			}
			require.Len(t, changes, 1)
			assert.Equal(t, gatewaytest.RoleChange{
				GuildID: guildID, UserID: 7, RoleID: minecraftRole,
				Reason: "[qol] User does not have subscriber role",
			}, changes[0])
		})
	}

	t.Run("missing roles disable the fix", func(t *testing.T) {
		t.Parallel()

		gw := gatewaytest.New()
		gw.PutRole(guildID, discord.Role{ID: minecraftRole})
		f := newFeature(t, gw, server)

		require.NoError(t, f.OnMemberUpdate(t.Context(), gateway.MemberUpdate{
			GuildID: guildID,
			Member:  discord.Member{User: discord.User{ID: 7}, RoleIDs: []snowflake.ID{minecraftRole}},
		}))
		assert.Empty(t, gw.RoleChanges())
	})
}

func TestAutoModAttachments(t *testing.T) {
	t.Parallel()

	server := config.Server{QOL: config.QOL{AutoMod: config.AutoMod{SendFlagAttachments: true}}}
	action := gateway.AutoModAction{
		GuildID:        guildID,
		ActionType:     discord.AutoModerationActionTypeSendAlertMessage,
		ChannelID:      generalChannel,
		MessageID:      500,
		AlertChannelID: alertChannel,
		AlertMessageID: 600,
	}

	t.Run("uploads attachments again", func(t *testing.T) {
		t.Parallel()

		cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/a.png":
				_, _ = w.Write([]byte("first image"))
			case "/b.png":
				_, _ = w.Write([]byte("second image"))
			default:
				http.NotFound(w, r)
			}
		}))
		t.Cleanup(cdn.Close)

		gw := gatewaytest.New()
		gw.PutMessage(discord.Message{
			ID: 500, ChannelID: generalChannel,
			Attachments: []discord.Attachment{
				{Filename: "a.png", URL: cdn.URL + "/a.png"},
				{Filename: "b.png", URL: cdn.URL + "/b.png"},
				{Filename: "gone.png", URL: cdn.URL + "/gone.png"},
			},
		})
		f := newFeature(t, gw, server, qol.WithHTTPClient(cdn.Client()))

		require.NoError(t, f.OnAutoModAction(t.Context(), action))

		sent := gw.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, alertChannel, sent[0].ChannelID)
		require.NotNil(t, sent[0].Message.MessageReference)
		assert.Equal(t, snowflake.ID(600), *sent[0].Message.MessageReference.MessageID)

		files := sent[0].Message.Files
		require.Len(t, files, 2)
		assert.Equal(t, "a.png", files[0].Name)
		body, err := io.ReadAll(files[0].Reader)
		require.NoError(t, err)
		assert.Equal(t, "first image", string(body))
		assert.Equal(t, "b.png", files[1].Name)

		// Files that could not be fetched fall back to their link.
		assert.Equal(t, cdn.URL+"/gone.png", sent[0].Message.Content)
	})

	t.Run("skips messages without attachments", func(t *testing.T) {
		t.Parallel()

		gw := gatewaytest.New()
		gw.PutMessage(discord.Message{ID: 500, ChannelID: generalChannel})
		f := newFeature(t, gw, server)

		require.NoError(t, f.OnAutoModAction(t.Context(), action))
		assert.Empty(t, gw.Sent())
	})

	t.Run("skips other action types", func(t *testing.T) {
		t.Parallel()

		gw := gatewaytest.New()
		f := newFeature(t, gw, server)

		block := action
		block.ActionType = discord.AutoModerationActionTypeBlockMessage
		require.NoError(t, f.OnAutoModAction(t.Context(), block))
		assert.Empty(t, gw.Sent())
	})
}
