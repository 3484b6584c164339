package gateway_test

import (
	"testing"
	"time"

	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizerDeduplicatesPacket(t *testing.T) {
	t.Parallel()

	clock := scheduler.NewManualClock(time.Unix(0, 0))
	sched := scheduler.New(clock, zap.NewNop())
	n := gateway.NewNormalizer(sched)

	reaction := gateway.Reaction{GuildID: 1, MessageID: 2, UserID: 3, Emoji: gateway.Emoji{Name: "👍"}, Added: true}

	assert.True(t, n.AcceptReaction(10, &reaction))
	assert.False(t, n.AcceptReaction(10, &reaction))

	// A different packet about the same reaction is delivered.
	assert.True(t, n.AcceptReaction(11, &reaction))

	// Same sequence number but another entity is delivered.
	other := reaction
	other.UserID = 4
	assert.True(t, n.AcceptReaction(10, &other))

	removal := reaction
	removal.Added = false
	assert.True(t, n.AcceptReaction(10, &removal))
}

func TestNormalizerPrunesAfterWindow(t *testing.T) {
	t.Parallel()

	clock := scheduler.NewManualClock(time.Unix(0, 0))
	sched := scheduler.New(clock, zap.NewNop())
	n := gateway.NewNormalizer(sched)

	msg := gateway.Message{GuildID: 1, ID: 5}
	assert.True(t, n.AcceptMessage(1, msg))
	assert.Equal(t, 1, n.Pending())

	clock.Advance(2 * time.Minute)
	sched.RunDue()

	assert.Equal(t, 0, n.Pending())
	assert.True(t, n.AcceptMessage(1, msg))
}

func TestNormalizerSeparatesKinds(t *testing.T) {
	t.Parallel()

	n := gateway.NewNormalizer(scheduler.New(scheduler.NewManualClock(time.Unix(0, 0)), zap.NewNop()))

	msg := gateway.Message{GuildID: 1, ID: 5}
	assert.True(t, n.AcceptMessage(7, msg))
	assert.True(t, n.AcceptMessageUpdate(7, gateway.MessageUpdate{Message: msg}))
	assert.False(t, n.AcceptMessageUpdate(7, gateway.MessageUpdate{Message: msg}))
}

func TestNormalizerStampsReactionsInDeliveryOrder(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	n := gateway.NewNormalizer(scheduler.New(scheduler.NewManualClock(start), zap.NewNop()))

	first := gateway.Reaction{GuildID: 1, MessageID: 2, UserID: 3, Emoji: gateway.Emoji{Name: "👍"}, Added: true}
	second := first
	second.UserID = 4

	require.True(t, n.AcceptReaction(1, &first))
	require.True(t, n.AcceptReaction(2, &second))

	assert.Equal(t, start, first.Received)
	assert.Equal(t, start, second.Received)
	assert.Less(t, first.Order, second.Order)

	// A duplicate keeps its original stamp.
	duplicate := second
	duplicate.Order = 0
	assert.False(t, n.AcceptReaction(2, &duplicate))
	assert.Zero(t, duplicate.Order)
}
