package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/austindbirch/logframe/internal/tracing"
)

// Logger provides structured JSON logging with trace correlation
type Logger struct {
	mu      sync.RWMutex
	service string
	log     *logrus.Logger
}

// LogEntry is an immutable set of fields waiting for a level and message.
// Every With* method returns a new entry, so a base entry can be shared.
type LogEntry struct {
	entry *logrus.Entry
}

// New creates a new structured logger for the given service
func New(service string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	l.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	return &Logger{service: service, log: l}
}

// SetOutput redirects the logger; tests point it at a buffer.
func (l *Logger) SetOutput(w io.Writer) {
	l.log.SetOutput(w)
}

// SetLevel changes the minimum level. Unknown levels fall back to info.
func (l *Logger) SetLevel(level string) {
	l.log.SetLevel(parseLevel(level))
}

// Service returns the service name stamped on every entry.
func (l *Logger) Service() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.service
}

func (l *Logger) setService(service string) {
	l.mu.Lock()
	l.service = service
	l.mu.Unlock()
}

func (l *Logger) base() *logrus.Entry {
	e := logrus.NewEntry(l.log)
	if service := l.Service(); service != "" {
		e = e.WithField("service", service)
	}
	return e
}

// WithContext creates a log entry with trace correlation from context
func (l *Logger) WithContext(ctx context.Context) *LogEntry {
	e := l.base().WithContext(ctx)
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		e = e.WithField("trace_id", traceID)
	}
	if spanID := tracing.GetSpanID(ctx); spanID != "" {
		e = e.WithField("span_id", spanID)
	}
	return &LogEntry{entry: e}
}

// WithFields creates a log entry with arbitrary key-value pairs
func (l *Logger) WithFields(fields map[string]any) *LogEntry {
	return &LogEntry{entry: l.base().WithFields(logrus.Fields(fields))}
}

// Plain creates a basic log entry without context
func (l *Logger) Plain() *LogEntry {
	return &LogEntry{entry: l.base()}
}

// WithBatch tags the entry with a batch ID
func (e *LogEntry) WithBatch(batchID string) *LogEntry {
	return e.WithField("batch_id", batchID)
}

// WithAttempt tags the entry with a delivery attempt number
func (e *LogEntry) WithAttempt(attempt int) *LogEntry {
	return e.WithField("attempt", attempt)
}

// WithField adds a single field to the log entry
func (e *LogEntry) WithField(key string, value any) *LogEntry {
	return &LogEntry{entry: e.entry.WithField(key, value)}
}

// WithFields adds multiple fields to the log entry
func (e *LogEntry) WithFields(fields map[string]any) *LogEntry {
	return &LogEntry{entry: e.entry.WithFields(logrus.Fields(fields))}
}

// WithError adds an error field to the log entry
func (e *LogEntry) WithError(err error) *LogEntry {
	if err == nil {
		return e
	}
	return &LogEntry{entry: e.entry.WithError(err)}
}

func (e *LogEntry) Debug(message string) { e.entry.Debug(message) }
func (e *LogEntry) Debugf(format string, args ...any) { e.entry.Debugf(format, args...) }
func (e *LogEntry) Info(message string) { e.entry.Info(message) }
func (e *LogEntry) Infof(format string, args ...any) { e.entry.Infof(format, args...) }
func (e *LogEntry) Warn(message string) { e.entry.Warn(message) }
func (e *LogEntry) Warnf(format string, args ...any) { e.entry.Warnf(format, args...) }
func (e *LogEntry) Error(message string) { e.entry.Error(message) }
func (e *LogEntry) Errorf(format string, args ...any) { e.entry.Errorf(format, args...) }

// Fatal logs at fatal level and exits
func (e *LogEntry) Fatal(message string) { e.entry.Fatal(message) }

// Fatalf logs at fatal level with formatting and exits
func (e *LogEntry) Fatalf(format string, args ...any) { e.entry.Fatalf(format, args...) }

func parseLevel(level string) logrus.Level {
	if level == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Global convenience functions

var defaultLogger = New("logframe")

// Default returns the process-wide logger
func Default() *Logger {
	return defaultLogger
}

// WithContext creates a log entry with trace correlation from context using the default logger
func WithContext(ctx context.Context) *LogEntry {
	return defaultLogger.WithContext(ctx)
}

// WithFields creates a log entry with fields using the default logger
func WithFields(fields map[string]any) *LogEntry {
	return defaultLogger.WithFields(fields)
}

// Plain creates a basic log entry using the default logger
func Plain() *LogEntry {
	return defaultLogger.Plain()
}

// SetDefaultService sets the service name for the default logger. It is safe
// to call while other goroutines log through the default logger.
func SetDefaultService(service string) {
	defaultLogger.setService(service)
}
