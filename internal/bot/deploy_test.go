package bot_test

import (
	"sync"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedSet struct {
	guildID snowflake.ID
	count   int
}

type fakeSetter struct {
	mu       sync.Mutex
	sets     []recordedSet
	failFrom snowflake.ID
}

func (f *fakeSetter) SetGuildCommands(
	_ snowflake.ID, guildID snowflake.ID, cmds []discord.ApplicationCommandCreate, _ ...rest.RequestOpt,
) ([]discord.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if guildID == f.failFrom {
		return nil, errHandler
	}
	f.sets = append(f.sets, recordedSet{guildID: guildID, count: len(cmds)})
	return make([]discord.ApplicationCommand, len(cmds)), nil
}

func TestDeploy(t *testing.T) {
	t.Parallel()

	commands := (&stubFeature{name: "x", commands: []string{"a", "b"}}).Commands()

	t.Run("clear then deploy", func(t *testing.T) {
		t.Parallel()

		setter := &fakeSetter{}
		err := bot.Deploy(t.Context(), setter, commands, bot.DeployOptions{
			ApplicationID: 1,
			Guilds:        []snowflake.ID{10, 20},
			Clear:         true,
		}, zap.NewNop())
		require.NoError(t, err)

		assert.Equal(t, []recordedSet{
			{guildID: 10, count: 0},
			{guildID: 10, count: 2},
			{guildID: 20, count: 0},
			{guildID: 20, count: 2},
		}, setter.sets)
	})

	t.Run("failure does not stop other guilds", func(t *testing.T) {
		t.Parallel()

		setter := &fakeSetter{failFrom: 10}
		err := bot.Deploy(t.Context(), setter, commands, bot.DeployOptions{
			ApplicationID: 1,
			Guilds:        []snowflake.ID{10, 20},
		}, zap.NewNop())
		require.ErrorIs(t, err, errHandler)

		assert.Equal(t, []recordedSet{{guildID: 20, count: 2}}, setter.sets)
	})
}
