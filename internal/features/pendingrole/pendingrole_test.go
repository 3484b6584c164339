package pendingrole_test

import (
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features/pendingrole"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/gateway/gatewaytest"
	"github.com/robalyx/neurobot/internal/gateway/rate"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID      snowflake.ID = 1
	otherGuildID snowflake.ID = 2
	verifiedRole snowflake.ID = 50
	missingRole  snowflake.ID = 51
)

func newFeature(t *testing.T, gw *gatewaytest.Gateway) *pendingrole.Feature {
	t.Helper()

	gw.PutRole(guildID, discord.Role{ID: verifiedRole, Name: "Verified"})

	f := pendingrole.New(feature.Deps{
		Config: &config.Config{Servers: []config.Server{
			{GuildID: uint64(guildID), PendingRole: config.PendingRole{Role: uint64(verifiedRole)}},
			{GuildID: uint64(otherGuildID), PendingRole: config.PendingRole{Role: uint64(missingRole)}},
		}},
		Gateway: gw,
		Logger:  zap.NewNop(),
	}, pendingrole.WithLimiter(rate.Unlimited()), pendingrole.WithProgressInterval(time.Hour))

	require.NoError(t, f.Init(t.Context()))
	return f
}

func member(id snowflake.ID, bot bool, roles ...snowflake.ID) discord.Member {
	return discord.Member{User: discord.User{ID: id, Bot: bot}, RoleIDs: roles}
}

func TestGrantOnInteraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		handle func(t *testing.T, f *pendingrole.Feature)
		reason string
		want   bool
	}{
		{
			name: "message",
			handle: func(t *testing.T, f *pendingrole.Feature) {
				require.NoError(t, f.OnMessageCreate(t.Context(), gateway.Message{
					GuildID: guildID, Author: discord.User{ID: 7},
				}))
			},
			reason: "[interaction/message] User no longer pending rule verification",
			want:   true,
		},
		{
			name: "member update",
			handle: func(t *testing.T, f *pendingrole.Feature) {
				require.NoError(t, f.OnMemberUpdate(t.Context(), gateway.MemberUpdate{
					GuildID: guildID, Member: member(7, false),
				}))
			},
			reason: "[interaction/member update] User no longer pending rule verification",
			want:   true,
		},
		{
			name: "voice",
			handle: func(t *testing.T, f *pendingrole.Feature) {
				require.NoError(t, f.OnVoiceStateUpdate(t.Context(), gateway.VoiceStateUpdate{
					GuildID: guildID, UserID: 7, Member: member(7, false),
				}))
			},
			reason: "[interaction/voice] User no longer pending rule verification",
			want:   true,
		},
		{
			name: "bot message",
			handle: func(t *testing.T, f *pendingrole.Feature) {
				require.NoError(t, f.OnMessageCreate(t.Context(), gateway.Message{
					GuildID: guildID, Author: discord.User{ID: 7, Bot: true},
				}))
			},
		},
		{
			name: "already verified",
			handle: func(t *testing.T, f *pendingrole.Feature) {
				require.NoError(t, f.OnMessageCreate(t.Context(), gateway.Message{
					GuildID: guildID, Author: discord.User{ID: 7}, MemberRoles: []snowflake.ID{verifiedRole},
				}))
			},
		},
		{
			name: "bot member",
			handle: func(t *testing.T, f *pendingrole.Feature) {
				require.NoError(t, f.OnMemberUpdate(t.Context(), gateway.MemberUpdate{
					GuildID: guildID, Member: member(7, true),
				}))
			},
		},
		{
			name: "unresolved role",
			handle: func(t *testing.T, f *pendingrole.Feature) {
				require.NoError(t, f.OnMessageCreate(t.Context(), gateway.Message{
					GuildID: otherGuildID, Author: discord.User{ID: 7},
				}))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := gatewaytest.New()
			f := newFeature(t, gw)
			tt.handle(t, f)

			changes := gw.RoleChanges()
			if !tt.want {
				assert.Empty(t, changes)
				return
			}
			require.Len(t, changes, 1)
			assert.Equal(t, gatewaytest.RoleChange{
				GuildID: guildID, UserID: 7, RoleID: verifiedRole, Reason: tt.reason, Added: true,
			}, changes[0])
		})
	}
}

func TestAddMissing(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.PutMember(guildID, member(10, false))
	gw.PutMember(guildID, member(11, false, verifiedRole))
	gw.PutMember(guildID, member(12, true))
	gw.PutMember(guildID, member(13, false))
	gw.PutMember(guildID, member(14, false))
	gw.FailRoleChange = func(userID snowflake.ID) bool { return userID == 13 }

	f := newFeature(t, gw)

	i := gatewaytest.NewCommand(guildID, "pendingrole", "add-missing", nil)
	require.NoError(t, f.HandleCommand(t.Context(), i))

	deferred, _ := i.Deferred()
	assert.True(t, deferred)

	var granted []snowflake.ID
	for _, change := range gw.RoleChanges() {
		granted = append(granted, change.UserID)
	}
	assert.Equal(t, []snowflake.ID{10, 14}, granted)

	edits := i.Edits()
	require.NotEmpty(t, edits)
	final := edits[len(edits)-1]
	require.NotNil(t, final.Content)
	assert.Equal(t, "Finished adding pending role: 2 added, 1 failed, 5 total members.", *final.Content)

	m, ok := gw.Member(guildID, 10)
	require.True(t, ok)
	assert.True(t, gateway.HasRole(m, verifiedRole))
}

func TestAddMissingReportsProgress(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.PutRole(guildID, discord.Role{ID: verifiedRole})
	for id := snowflake.ID(10); id < 15; id++ {
		gw.PutMember(guildID, member(id, false))
	}

	f := pendingrole.New(feature.Deps{
		Config: &config.Config{Servers: []config.Server{
			{GuildID: uint64(guildID), PendingRole: config.PendingRole{Role: uint64(verifiedRole)}},
		}},
		Gateway: gw,
		Logger:  zap.NewNop(),
	}, pendingrole.WithLimiter(rate.New(20*time.Millisecond, 1, 0)), pendingrole.WithProgressInterval(5*time.Millisecond))
	require.NoError(t, f.Init(t.Context()))

	i := gatewaytest.NewCommand(guildID, "pendingrole", "add-missing", nil)
	require.NoError(t, f.HandleCommand(t.Context(), i))

	edits := i.Edits()
	require.Greater(t, len(edits), 1)
	assert.Contains(t, *edits[0].Content, "Adding pending role...")
	assert.Equal(t, "Finished adding pending role: 5 added, 0 failed, 5 total members.", *edits[len(edits)-1].Content)
}

func TestAddMissingWithoutRole(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	f := newFeature(t, gw)

	i := gatewaytest.NewCommand(otherGuildID, "pendingrole", "add-missing", nil)
	require.NoError(t, f.HandleCommand(t.Context(), i))

	assert.Equal(t, "The pending role is not configured for this server.", i.LastContent())
	assert.Empty(t, gw.RoleChanges())
}

func TestAddMissingSurvivesFailedProgressEdit(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.PutRole(guildID, discord.Role{ID: verifiedRole})
	for id := snowflake.ID(10); id < 15; id++ {
		gw.PutMember(guildID, member(id, false))
	}

	f := pendingrole.New(feature.Deps{
		Config: &config.Config{Servers: []config.Server{
			{GuildID: uint64(guildID), PendingRole: config.PendingRole{Role: uint64(verifiedRole)}},
		}},
		Gateway: gw,
		Logger:  zap.NewNop(),
	}, pendingrole.WithLimiter(rate.New(20*time.Millisecond, 1, 0)), pendingrole.WithProgressInterval(5*time.Millisecond))
	require.NoError(t, f.Init(t.Context()))

	i := gatewaytest.NewCommand(guildID, "pendingrole", "add-missing", nil)
	i.FailEditReply = func(msg discord.MessageUpdate) bool {
		return msg.Content != nil && strings.HasPrefix(*msg.Content, "Adding pending role")
	}
	require.NoError(t, f.HandleCommand(t.Context(), i))

	// The first failure stops the reports, so exactly one was attempted.
	require.Len(t, i.FailedEdits(), 1)
	assert.Len(t, gw.RoleChanges(), 5)

	edits := i.Edits()
	require.Len(t, edits, 1)
	require.NotNil(t, edits[0].Content)
	assert.Equal(t, "Finished adding pending role: 5 added, 0 failed, 5 total members.", *edits[0].Content)
}
