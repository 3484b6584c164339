package reactions

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/database/dbtest"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/gateway/gatewaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEditQueueShowsCountAtDrain(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	gw := gatewaytest.New()
	queue := NewEditQueue(gw, db.Model().Notification(), db.Model().Reaction(), zap.NewNop())

	for i, reactor := range []uint64{1, 2, 3} {
		require.NoError(t, db.Model().Reaction().Append(t.Context(), &types.Reaction{
			GuildID:   10,
			ChannelID: 20,
			MessageID: 30,
			ReactorID: reactor,
			Emoji:     "🔥",
			Timestamp: int64(i),
			Added:     true,
		}))
	}

	task := editTask{
		GuildID:        10,
		Pattern:        "🔥",
		GroupName:      "Hype",
		Emoji:          "🔥",
		MessageID:      30,
		MessageChannel: 20,
		ChannelID:      900,
		NotificationID: snowflake.ID(77),
		Count:          3,
	}
	queue.Push(task)

	// A push computed before the third reaction was logged arrives late.
	stale := task
	stale.Count = 2
	queue.Push(stale)
	require.Equal(t, 1, queue.Len())

	queue.Drain(t.Context())

	edits := gw.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, snowflake.ID(77), edits[0].MessageID)
	require.NotNil(t, edits[0].Update.Embeds)
	assert.Contains(t, (*edits[0].Update.Embeds)[0].Description, "**3**")
}
