package bot

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// slowFeature blocks in Init until released.
type slowFeature struct {
	started  chan struct{}
	release  chan struct{}
	messages chan gateway.Message
}

func (f *slowFeature) Name() string { return "slow" }

func (f *slowFeature) Init(ctx context.Context) error {
	close(f.started)
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return nil
}

func (f *slowFeature) OnMessageCreate(_ context.Context, msg gateway.Message) error {
	f.messages <- msg
	return nil
}

func TestEventsWaitForFeatureInit(t *testing.T) {
	t.Parallel()

	f := &slowFeature{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		messages: make(chan gateway.Message, 2),
	}
	registry := NewRegistry(zap.NewNop())
	require.NoError(t, registry.Register(f))

	b := &Bot{ctx: t.Context(), registry: registry, logger: zap.NewNop()}
	send := func(id snowflake.ID) {
		b.handle(func(d *Dispatcher) {
			d.DispatchMessageCreate(b.ctx, gateway.Message{ID: id})
		})
	}

	go b.initFeatures()
	<-f.started

	send(1)
	assert.False(t, b.Ready())

	close(f.release)
	require.Eventually(t, b.Ready, time.Second, time.Millisecond)

	send(2)
	select {
	case msg := <-f.messages:
		assert.Equal(t, snowflake.ID(2), msg.ID)
	case <-time.After(time.Second):
		t.Fatal("message was not dispatched after init")
	}
	assert.Empty(t, f.messages)
}
