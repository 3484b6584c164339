package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/extra/bunotel"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrUnknownDriver is returned when the configured driver is not supported.
var ErrUnknownDriver = errors.New("unknown database driver")

// sonicProvider is a JSON provider that uses Sonic for encoding and decoding.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

// Client defines the methods that a database client must implement.
type Client interface {
	// Model returns the repository containing all model operations.
	Model() *Repository
	// Close gracefully shuts down the database connection.
	Close() error
	// DB returns the underlying bun.DB instance.
	DB() *bun.DB
}

// clientImpl represents the concrete implementation of the database client.
type clientImpl struct {
	db     *bun.DB
	logger *zap.Logger
	repo   *Repository
}

// Options tweak connection setup.
type Options struct {
	// Tracing adds the OpenTelemetry query hook.
	Tracing bool
}

// NewConnection establishes a new database connection and returns a Client instance.
func NewConnection(ctx context.Context, cfg *config.Database, opts Options, logger *zap.Logger) (Client, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set Sonic as the JSON provider
	bunjson.SetProvider(sonicProvider{})

	// Add query hooks for monitoring
	slow := DefaultSlowQueryThreshold
	if cfg.SlowQueryMS != 0 {
		slow = time.Duration(cfg.SlowQueryMS) * time.Millisecond
	}
	db.AddQueryHook(NewQueryHook(logger, slow))
	if opts.Tracing {
		db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(cfg.DBName)))
	}

	client := &clientImpl{
		db:     db,
		logger: logger,
		repo:   NewRepository(db, logger),
	}

	logger.Info("Database connection established", zap.String("driver", cfg.Driver))

	return client, nil
}

// open creates the bun handle for the configured driver.
func open(cfg *config.Database) (*bun.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := "file::memory:"
		if cfg.Path != ":memory:" {
			dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
		}

		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}

		// SQLite allows a single writer; one connection also keeps in-memory databases shared
		sqldb.SetMaxOpenConns(1)

		return bun.NewDB(sqldb, sqlitedialect.New()), nil

	case "postgres":
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
			pgdriver.WithUser(cfg.User),
			pgdriver.WithPassword(cfg.Password),
			pgdriver.WithDatabase(cfg.DBName),
			pgdriver.WithInsecure(true),
			pgdriver.WithApplicationName("neurobot"),
		))

		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqldb.SetConnMaxIdleTime(30 * time.Minute)

		return bun.NewDB(sqldb, pgdialect.New()), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Close gracefully shuts down the database connection.
func (c *clientImpl) Close() error {
	err := c.db.Close()
	if err != nil {
		c.logger.Error("Failed to close database connection", zap.Error(err))
		return err
	}

	c.logger.Info("Database connection closed")

	return nil
}

// Model returns the repository containing all model operations.
func (c *clientImpl) Model() *Repository {
	return c.repo
}

// DB returns the underlying bun.DB instance.
func (c *clientImpl) DB() *bun.DB {
	return c.db
}
