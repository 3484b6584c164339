package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

// Core implements zapcore.Core to forward error logs to OpenTelemetry as spans.
type Core struct {
	zapcore.LevelEnabler
	tracer trace.Tracer
	fields []zapcore.Field
}

// NewCore creates a new core that forwards logs to OpenTelemetry.
func NewCore(enab zapcore.LevelEnabler) zapcore.Core {
	return &Core{
		LevelEnabler: enab,
		tracer:       otel.Tracer("logs"),
	}
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	return &Core{
		LevelEnabler: c.LevelEnabler,
		tracer:       c.tracer,
		fields:       append(append([]zapcore.Field(nil), c.fields...), fields...),
	}
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	// Only forward Error and higher severity
	if ent.Level < zapcore.ErrorLevel {
		return nil
	}

	_, span := c.tracer.Start(context.Background(), "error."+errorCategory(ent))
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("error.message", ent.Message),
		attribute.String("error.level", ent.Level.String()),
		attribute.String("error.caller", ent.Caller.String()),
		attribute.String("logger", ent.LoggerName),
	}

	// Encode fields through a map encoder so non-string values survive
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range append(c.fields, fields...) {
		field.AddTo(enc)
	}
	for key, value := range enc.Fields {
		attrs = append(attrs, attribute.String(key, stringify(value)))
	}

	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, ent.Message)
	return nil
}

func (c *Core) Sync() error {
	return nil
}

// errorCategory determines the error category based on the calling package.
func errorCategory(ent zapcore.Entry) string {
	switch fn := ent.Caller.Function; {
	case strings.Contains(fn, "/database"):
		return "database"
	case strings.Contains(fn, "/redis"):
		return "redis"
	case strings.Contains(fn, "/features/"):
		return "feature"
	case strings.Contains(fn, "/discord"):
		return "discord"
	case strings.Contains(fn, "/bot"):
		return "bot"
	case strings.Contains(fn, "/setup"):
		return "setup"
	default:
		return "application"
	}
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
