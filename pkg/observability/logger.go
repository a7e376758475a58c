package observability

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a JSON logrus logger. An unparseable level falls back to
// info; a nil output writes to stderr.
func NewLogger(level string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stderr
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// contextKey is the type for context keys
type contextKey string

const (
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
	// OperationIDKey is the context key for an operation correlation id
	OperationIDKey contextKey = "operation_id"
)

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *logrus.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithOperationID tags the context with a correlation id
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, OperationIDKey, id)
}

// GetOperationID retrieves the correlation id from context
func GetOperationID(ctx context.Context) string {
	if id, ok := ctx.Value(OperationIDKey).(string); ok {
		return id
	}
	return ""
}

// GetLogger retrieves the logger from context, or a default one
func GetLogger(ctx context.Context) *logrus.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*logrus.Logger); ok && logger != nil {
		return logger
	}
	return logrus.StandardLogger()
}

// FromContext returns an entry carrying the context's correlation id
func FromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(GetLogger(ctx))
	if id := GetOperationID(ctx); id != "" {
		entry = entry.WithField("operation_id", id)
	}
	return entry
}
