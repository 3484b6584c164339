package features_test

import (
	"testing"

	"github.com/robalyx/neurobot/internal/database/dbtest"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features"
	"github.com/robalyx/neurobot/internal/gateway/gatewaytest"
	"github.com/robalyx/neurobot/internal/scheduler"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestAllFeaturesAreRoutable(t *testing.T) {
	t.Parallel()

	logger := zap.NewNop()
	all := features.All(feature.Deps{
		Config:    &config.Config{},
		Gateway:   gatewaytest.New(),
		DB:        dbtest.New(t),
		Scheduler: scheduler.New(scheduler.SystemClock{}, logger),
		Cron:      scheduler.NewCron(logger),
		Logger:    logger,
	})

	names := make(map[string]struct{})
	commands := make(map[string]string)
	for _, f := range all {
		assert.True(t, feature.Handles(f), "%s handles nothing", f.Name())

		_, dup := names[f.Name()]
		assert.False(t, dup, "duplicate feature name %s", f.Name())
		names[f.Name()] = struct{}{}

		provider, ok := f.(feature.CommandProvider)
		if !ok {
			continue
		}
		for _, cmd := range provider.Commands() {
			owner, taken := commands[cmd.CommandName()]
			assert.False(t, taken, "command %s declared by %s and %s", cmd.CommandName(), owner, f.Name())
			commands[cmd.CommandName()] = f.Name()
		}
	}

	assert.Len(t, all, 13)
	assert.Contains(t, commands, "reactions")
}
