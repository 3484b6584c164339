package feature

import (
	"github.com/robalyx/neurobot/internal/ai"
	"github.com/robalyx/neurobot/internal/database"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/redis"
	"github.com/robalyx/neurobot/internal/scheduler"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

// Deps bundles what features are constructed with.
type Deps struct {
	Config     *config.Config
	Gateway    gateway.Gateway
	DB         database.Client
	Cache      *redis.Cache
	Translator func(provider string) ai.Translator
	Summarizer ai.Summarizer
	Scheduler  *scheduler.Scheduler
	Cron       *scheduler.Cron
	Logger     *zap.Logger
}
