// Package logger provides context-aware structured logging for the whole
// application. Request-scoped fields (tree id, document id) travel inside
// the context so every log line emitted during a pipeline step carries
// them automatically.
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const fieldsKey contextKey = "logger_fields"

var std = logrus.New()

func init() {
	std.SetOutput(os.Stdout)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.SetLevel(logrus.InfoLevel)
}

// Config controls the global logger behavior
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Setup applies the configured level and formatter to the global logger.
func Setup(cfg Config) {
	if level, err := logrus.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
		std.SetLevel(level)
	}
	if strings.EqualFold(cfg.Format, "json") {
		std.SetFormatter(&logrus.JSONFormatter{})
	}
}

// WithField returns a context carrying an additional log field.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	fields := logrus.Fields{}
	if existing, ok := ctx.Value(fieldsKey).(logrus.Fields); ok {
		for k, v := range existing {
			fields[k] = v
		}
	}
	fields[key] = value
	return context.WithValue(ctx, fieldsKey, fields)
}

// WithFields returns a context carrying several additional log fields.
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	for k, v := range fields {
		ctx = WithField(ctx, k, v)
	}
	return ctx
}

// GetLogger returns an entry bound to the fields stored in the context.
func GetLogger(ctx context.Context) *logrus.Entry {
	if fields, ok := ctx.Value(fieldsKey).(logrus.Fields); ok {
		return std.WithFields(fields)
	}
	return logrus.NewEntry(std)
}

// Debugf logs a formatted debug message with context fields.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Debugf(format, args...)
}

// Infof logs a formatted info message with context fields.
func Infof(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Infof(format, args...)
}

// Warnf logs a formatted warning message with context fields.
func Warnf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Warnf(format, args...)
}

// Errorf logs a formatted error message with context fields.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Errorf(format, args...)
}

// Error logs an error value with context fields.
func Error(ctx context.Context, err error) {
	GetLogger(ctx).Error(err)
}
