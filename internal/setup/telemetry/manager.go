package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Manager handles the creation and management of log files and directories.
// Every run writes into its own timestamped session directory.
type Manager struct {
	instanceID        string // Unique identifier for this program instance
	currentSessionDir string // Path to the current session's log directory
	logDir            string // Base directory for all logs
	level             string // Logging level (debug, info, warn, error)
	maxLogsToKeep     int    // Maximum number of log sessions to retain
	console           bool   // Mirror logs to stderr
	tracing           bool   // Forward errors to OpenTelemetry
}

// NewManager creates a new Manager instance.
func NewManager(logDir string, debugCfg *config.Debug) *Manager {
	return &Manager{
		instanceID:    uuid.New().String(),
		logDir:        logDir,
		level:         debugCfg.LogLevel,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		console:       debugCfg.Console,
	}
}

// SetupTracing configures OpenTelemetry through uptrace when a DSN is set.
// The returned function flushes and shuts down the exporter.
func (lm *Manager) SetupTracing(ctx context.Context, cfg *config.Telemetry) func(context.Context) error {
	if cfg.UptraceDSN == "" {
		return func(context.Context) error { return nil }
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(cfg.ServiceName),
	)
	lm.tracing = true

	return uptrace.Shutdown
}

// InstanceID returns the unique instance identifier for this program run.
func (lm *Manager) InstanceID() string {
	return lm.instanceID
}

// GetLoggers initializes the main and database loggers.
func (lm *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := lm.setupLogDirectories(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "main.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	dbLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "database.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	mainLogger = mainLogger.With(zap.String("instance", lm.instanceID))

	return mainLogger, dbLogger, nil
}

// setupLogDirectories creates and manages the log directory structure.
// It ensures the base directory exists, rotates old logs, and creates a new session directory.
func (lm *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(lm.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	lm.currentSessionDir = filepath.Join(lm.logDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(lm.currentSessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return nil
}

// initLogger creates a new zap logger writing to path, stderr and tracing as configured.
func (lm *Manager) initLogger(path string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(lm.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(file), zapLevel),
	}

	if lm.console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), zapLevel,
		))
	}

	if lm.tracing {
		cores = append(cores, NewCore(zapLevel))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// rotateLogSessions removes the oldest session directories beyond maxLogsToKeep.
func (lm *Manager) rotateLogSessions() error {
	sessions, err := filepath.Glob(filepath.Join(lm.logDir, "*"))
	if err != nil {
		return err
	}

	if len(sessions) < lm.maxLogsToKeep {
		return nil
	}

	// Sort sessions by modification time (oldest first)
	sort.Slice(sessions, func(i, j int) bool {
		iInfo, _ := os.Stat(sessions[i])
		jInfo, _ := os.Stat(sessions[j])

		return iInfo.ModTime().Before(jInfo.ModTime())
	})

	// Leave room for the session about to be created
	toDelete := len(sessions) - lm.maxLogsToKeep + 1
	for i := range toDelete {
		if err := os.RemoveAll(sessions[i]); err != nil {
			return err
		}
	}

	return nil
}
