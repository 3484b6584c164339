package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// DefaultSlowQueryThreshold is used when the config leaves it unset.
const DefaultSlowQueryThreshold = 250 * time.Millisecond

// QueryHook logs every query labelled with its operation and table. Failed
// queries log at error, queries slower than the threshold at warn and the
// rest at debug. A missing row is an expected outcome of the lookups that
// return an Option and is not treated as a failure.
type QueryHook struct {
	logger *zap.Logger
	slow   time.Duration
}

// NewQueryHook creates a QueryHook. A non-positive slow disables slow query
// warnings.
func NewQueryHook(logger *zap.Logger, slow time.Duration) *QueryHook {
	return &QueryHook{logger: logger.Named("query"), slow: slow}
}

// BeforeQuery is a no-op; timing comes from the event start time.
func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery logs the query and its execution time.
func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)
	fields := []zap.Field{
		zap.String("operation", event.Operation()),
		zap.String("table", queryTable(event)),
		zap.Duration("duration", duration),
		zap.String("query", event.Query),
	}

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Error("Query failed", append(fields, zap.Error(event.Err))...)
	case h.slow > 0 && duration >= h.slow:
		h.logger.Warn("Slow query", append(fields, zap.Duration("threshold", h.slow))...)
	default:
		h.logger.Debug("Query executed", fields...)
	}
}

func queryTable(event *bun.QueryEvent) string {
	if event.IQuery == nil {
		return ""
	}
	return event.IQuery.GetTableName()
}
