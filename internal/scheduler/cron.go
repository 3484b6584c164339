package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Cron runs recurring jobs for the process lifetime.
type Cron struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewCron creates a cron runner whose jobs recover from panics and never overlap themselves.
func NewCron(logger *zap.Logger) *Cron {
	logger = logger.Named("cron")
	cl := cronLogger{logger: logger.Sugar()}

	return &Cron{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Every schedules job at a fixed interval.
func (c *Cron) Every(name string, interval time.Duration, job func()) error {
	id, err := c.cron.AddFunc("@every "+interval.String(), job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	c.logger.Debug("Scheduled recurring job",
		zap.String("name", name),
		zap.Duration("interval", interval),
		zap.Int("id", int(id)))
	return nil
}

// Start begins running jobs in the background.
func (c *Cron) Start() {
	c.cron.Start()
}

// Stop halts scheduling and waits for running jobs or ctx, whichever comes first.
func (c *Cron) Stop(ctx context.Context) {
	select {
	case <-c.cron.Stop().Done():
	case <-ctx.Done():
	}
}
