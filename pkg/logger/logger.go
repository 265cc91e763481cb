// Package logger provides the structured logger shared by every component.
// It wraps logrus and carries a component name on every entry.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a logrus logger bound to a component name.
type Logger struct {
	*logrus.Logger
	name string
}

// New creates a logger for the named component. level is a logrus level name
// (debug, info, warn, error); format is "json" or "text".
func New(name, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Logger: l, name: name}
}

// NewDefault creates an info-level text logger for the named component.
func NewDefault(name string) *Logger {
	return New(name, "info", "text")
}

// NewDiscard creates a logger that drops everything. Used by tests.
func NewDiscard(name string) *Logger {
	l := New(name, "panic", "text")
	l.SetOutput(io.Discard)
	return l
}

// Name returns the component name.
func (l *Logger) Name() string {
	return l.name
}

// Named returns a logger sharing the same output and level under another name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger, name: name}
}

// WithContext returns an entry carrying the component name and, when present,
// the request id stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.name)
	if ctx == nil {
		return entry
	}
	if id := GetRequestID(ctx); id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry.WithContext(ctx)
}

// WithField returns an entry carrying the component name and one field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField("component", l.name).WithField(key, value)
}

// WithFields returns an entry carrying the component name and the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithField("component", l.name).WithFields(fields)
}

// WithError returns an entry carrying the component name and err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("component", l.name).WithError(err)
}

type requestIDKey struct{}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
