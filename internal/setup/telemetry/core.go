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

// Core implements zapcore.Core and records error logs as OpenTelemetry spans.
type Core struct {
	zapcore.LevelEnabler
	tracer trace.Tracer
	fields []zapcore.Field
}

// NewCore creates a core that forwards entries at or above the enabler's level.
func NewCore(enab zapcore.LevelEnabler) zapcore.Core {
	return &Core{
		LevelEnabler: enab,
		tracer:       otel.Tracer("github.com/robalyx/legalgate/logs"),
	}
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	_, span := c.tracer.Start(context.Background(), "log."+category(ent))
	defer span.End()

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	attrs := make([]attribute.KeyValue, 0, len(enc.Fields)+4)
	attrs = append(attrs,
		attribute.String("log.message", ent.Message),
		attribute.String("log.level", ent.Level.String()),
		attribute.String("log.logger", ent.LoggerName),
		attribute.String("code.caller", ent.Caller.TrimmedPath()),
	)
	for key, value := range enc.Fields {
		attrs = append(attrs, attribute.String("log.field."+key, fmt.Sprint(value)))
	}

	span.SetAttributes(attrs...)
	if ent.Level >= zapcore.ErrorLevel {
		span.SetStatus(codes.Error, ent.Message)
	}

	return nil
}

func (c *Core) Sync() error {
	return nil
}

// category groups entries by the package that logged them.
func category(ent zapcore.Entry) string {
	fn := ent.Caller.Function
	switch {
	case strings.Contains(fn, "/internal/database"):
		return "database"
	case strings.Contains(fn, "/internal/gate"), strings.Contains(fn, "/internal/grace"):
		return "gate"
	case strings.Contains(fn, "/internal/rest"):
		return "rest"
	case strings.Contains(fn, "/internal/worker"):
		return "worker"
	case strings.Contains(fn, "/internal/export"):
		return "export"
	case strings.Contains(fn, "/internal/redis"):
		return "redis"
	default:
		return "application"
	}
}
