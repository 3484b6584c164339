package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/robalyx/neurobot/internal/ai"
	aiClient "github.com/robalyx/neurobot/internal/ai/client"
	"github.com/robalyx/neurobot/internal/database"
	"github.com/robalyx/neurobot/internal/redis"
	"github.com/robalyx/neurobot/internal/scheduler"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/robalyx/neurobot/internal/setup/telemetry"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config                  // Application configuration
	Logger       *zap.Logger                     // Main application logger
	DBLogger     *zap.Logger                     // Database-specific logger
	DB           database.Client                 // Database connection pool
	AIClient     *aiClient.Client                // Chat and moderation client
	RedisManager *redis.Manager                  // Redis connection manager
	Cache        *redis.Cache                    // Shared cache, possibly disabled
	Scheduler    *scheduler.Scheduler            // Delayed task queue
	Cron         *scheduler.Cron                 // Recurring jobs
	Summarizer   ai.Summarizer                   // Conversation summaries
	LogManager   *telemetry.Manager              // Log management system
	translators  map[string]ai.Translator        // Translators by provider
	shutdown     func(ctx context.Context) error // Tracing exporter shutdown
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(logDir, &cfg.Debug)
	shutdown := logManager.SetupTracing(ctx, &cfg.Telemetry)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Database tables are created idempotently on every start
	db, err := database.NewConnection(ctx, &cfg.Database, database.Options{
		Tracing: cfg.Telemetry.UptraceDSN != "",
	}, dbLogger)
	if err != nil {
		return nil, err
	}

	if err := db.Model().CreateTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	// Redis is optional and only backs caches
	redisManager := redis.NewManager(&cfg.Redis, logger)
	cache := redisManager.Cache()

	chat := aiClient.NewClient(&cfg.OpenAI, logger)
	translators := map[string]ai.Translator{
		config.ProviderOpenAI: ai.NewTranslator(config.ProviderOpenAI, chat, &cfg.DeepL, cache, logger),
		config.ProviderDeepL:  ai.NewTranslator(config.ProviderDeepL, chat, &cfg.DeepL, cache, logger),
	}

	// Bundle all initialized components
	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		AIClient:     chat,
		RedisManager: redisManager,
		Cache:        cache,
		Scheduler:    scheduler.New(scheduler.SystemClock{}, logger),
		Cron:         scheduler.NewCron(logger),
		Summarizer:   ai.NewChatSummarizer(chat, logger),
		LogManager:   logManager,
		translators:  translators,
		shutdown:     shutdown,
	}, nil
}

// Translator returns the translator for provider, falling back to OpenAI.
func (s *App) Translator(provider string) ai.Translator {
	if translator, ok := s.translators[provider]; ok {
		return translator
	}
	return s.translators[config.ProviderOpenAI]
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	s.Cron.Stop(ctx)

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()

	if err := s.shutdown(ctx); err != nil {
		log.Printf("Failed to shut down tracing: %v", err)
	}
}
