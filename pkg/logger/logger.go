// Package logger provides context-aware structured logging on top of
// logrus. Loggers travel through context.Context so that every layer of a
// command invocation logs with the fields accumulated by its callers.
package logger

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// G retrieves the logger stored in a context, falling back to L.
	G = GetLogger
	// L is the process-wide logger entry used when a context carries none.
	L = logrus.NewEntry(newLogger())
)

type loggerKey struct{}

// WithLogger returns a context carrying the given logger entry.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry.WithContext(ctx))
}

// GetLogger returns the logger entry attached to ctx, or the global entry
// bound to ctx when none is attached.
func GetLogger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return entry
	}
	return L.WithContext(ctx)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	applyFormat(l, "text")
	return l
}

func applyFormat(l *logrus.Logger, format string) {
	switch format {
	case "json":
		l.Formatter = &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
		}
	default:
		l.Formatter = &logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		}
	}
}

// SetLogLevel sets the level of the global logger. Accepts any level name
// logrus understands (panic, fatal, error, warn, info, debug, trace).
func SetLogLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	L.Logger.SetLevel(parsed)
	return nil
}

// SetLogFormat switches the global logger between "text" and "json" output.
func SetLogFormat(format string) {
	applyFormat(L.Logger, format)
}

// SetLogOutput redirects the global logger, mainly used by tests and by the
// MCP server which must keep stdout clean for the protocol stream.
func SetLogOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}
