// Package logging provides the single structured logging interface used
// across every component of the pipeline. It wraps logrus with
// leveled output, JSON/text formatting, and trace-ID propagation through
// context.Context, so no component ever constructs its own logger.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// Logger is a component-tagged log entry. Embedding *logrus.Entry means
// Info/Warn/Error/WithField etc. are available directly and always
// carry the "component" field, the way this codebase's services call
// logrus.WithField("component", ...) once and keep using the result.
type Logger struct {
	*logrus.Entry
	base      *logrus.Logger
	component string
}

// Config controls level/format/output selection.
type Config struct {
	Level     string
	Format    string // "json" or "text"
	Component string
}

// New constructs a Logger from an explicit Config.
func New(cfg Config) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	base.SetOutput(os.Stdout)

	return &Logger{
		Entry:     base.WithField("component", cfg.Component),
		base:      base,
		component: cfg.Component,
	}
}

// NewFromEnv builds a Logger using LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(Config{Level: level, Format: format, Component: component})
}

// WithComponent returns a derived Logger tagged with a sub-component
// name, e.g. logger.WithComponent("ingestion-scheduler").
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Entry:     l.base.WithField("component", name),
		base:      l.base,
		component: name,
	}
}

// WithContext returns a log entry additionally carrying the trace ID,
// if one is present in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	if id := TraceID(ctx); id != "" {
		return l.Entry.WithField("trace_id", id)
	}
	return l.Entry
}

// WithErr returns a log entry carrying the given error, named to avoid
// colliding with logrus.Entry's own WithError (kept available via
// embedding for direct use).
func (l *Logger) WithErr(err error) *logrus.Entry {
	return l.Entry.WithError(err)
}

// NewTraceID generates a new randomly-assigned trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID retrieves the trace ID from ctx, or "" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

var defaultLogger *Logger

// Default returns a lazily-initialized fallback logger for code paths
// unreachable from the supervisor's explicit construction graph (e.g.
// package-level init failures before any component is wired).
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = NewFromEnv("unknown")
	}
	return defaultLogger
}
