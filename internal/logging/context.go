package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context. Every run-scoped
// log event carries trace_id and unit id so downstream collectors can
// correlate a digest with its stage events.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if traceID := TraceIDFromContext(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if unitID := UnitIDFromContext(ctx); unitID != "" {
		fields = append(fields, zap.String("unit.id", unitID))
	}
	if stage := StageFromContext(ctx); stage != "" {
		fields = append(fields, zap.String("stage", stage))
	}

	return fields
}

// Context key types
type traceCtxKey struct{}
type unitCtxKey struct{}
type stageCtxKey struct{}

const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateID validates a trace or unit ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// TraceIDFromContext extracts the run trace ID from context.
func TraceIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(traceCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithTraceID adds the run trace ID to context.
// Panics if traceID is empty or contains invalid characters.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if err := validateID(traceID, "traceID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, traceCtxKey{}, traceID)
}

// UnitIDFromContext extracts the digest unit ID from context.
func UnitIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(unitCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithUnitID adds the digest unit ID (mailbox or channel) to context.
// Panics if unitID is empty or contains invalid characters.
func WithUnitID(ctx context.Context, unitID string) context.Context {
	if err := validateID(unitID, "unitID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, unitCtxKey{}, unitID)
}

// StageFromContext extracts the pipeline stage name from context.
func StageFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(stageCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithStage tags the context with a pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageCtxKey{}, stage)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
