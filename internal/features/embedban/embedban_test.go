package embedban_test

import (
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features/embedban"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/gateway/gatewaytest"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID snowflake.ID = 1
	roleID  snowflake.ID = 60
	userID  snowflake.ID = 123456789012345678
)

func newFeature(gw *gatewaytest.Gateway) *embedban.Feature {
	return embedban.New(feature.Deps{
		Config: &config.Config{Servers: []config.Server{{
			GuildID:  uint64(guildID),
			EmbedBan: config.EmbedBan{Role: uint64(roleID)},
		}}},
		Gateway: gw,
		Logger:  zap.NewNop(),
	})
}

func TestToggle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "mention", input: "<@123456789012345678>"},
		{name: "id", input: "123456789012345678"},
		{name: "username", input: "chatter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := gatewaytest.New()
			gw.PutRole(guildID, discord.Role{ID: roleID})
			gw.PutMember(guildID, discord.Member{User: discord.User{ID: userID, Username: "chatter"}})
			f := newFeature(gw)

			ban := gatewaytest.NewCommand(guildID, "embedban", "", map[string]string{"user": tt.input})
			require.NoError(t, f.HandleCommand(t.Context(), ban))
			assert.Equal(t, "Added embed ban role for <@123456789012345678>.", ban.LastContent())

			member, ok := gw.Member(guildID, userID)
			require.True(t, ok)
			assert.True(t, gateway.HasRole(member, roleID))

			unban := gatewaytest.NewCommand(guildID, "embedban", "", map[string]string{"user": tt.input})
			require.NoError(t, f.HandleCommand(t.Context(), unban))
			assert.Equal(t, "Removed embed ban role for <@123456789012345678>.", unban.LastContent())

			changes := gw.RoleChanges()
			require.Len(t, changes, 2)
			assert.Equal(t, "[interaction/embedban] User banned from using embeds", changes[0].Reason)
			assert.True(t, changes[0].Added)
			assert.Equal(t, "[interaction/embedban] User unbanned from using embeds", changes[1].Reason)
			assert.False(t, changes[1].Added)
		})
	}
}

func TestUnknownUser(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.PutRole(guildID, discord.Role{ID: roleID})
	f := newFeature(gw)

	i := gatewaytest.NewCommand(guildID, "embedban", "", map[string]string{"user": "nobody"})
	require.NoError(t, f.HandleCommand(t.Context(), i))
	assert.Equal(t, "Could not find user by username or ID", i.LastContent())
	assert.Empty(t, gw.RoleChanges())
}

func TestMissingRole(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	f := newFeature(gw)

	i := gatewaytest.NewCommand(guildID, "embedban", "", map[string]string{"user": "chatter"})
	require.NoError(t, f.HandleCommand(t.Context(), i))
	assert.Equal(t, "Embed ban role 60 does not exist. Please contact the bot operator.", i.LastContent())
}
