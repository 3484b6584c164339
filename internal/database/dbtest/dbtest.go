// Package dbtest opens in-memory databases for tests.
package dbtest

import (
	"testing"

	"github.com/robalyx/neurobot/internal/database"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// New returns a client over a fresh in-memory SQLite database with every table created.
func New(t testing.TB) database.Client {
	t.Helper()

	db, err := database.NewConnection(t.Context(), &config.Database{
		Driver: "sqlite",
		Path:   ":memory:",
	}, database.Options{}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Model().CreateTables(t.Context()))

	return db
}
