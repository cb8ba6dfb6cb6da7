package logging

import (
	"strings"

	"github.com/nsqio/go-nsq"
)

// NSQLogger adapts a Logger to the go-nsq logger interface. go-nsq prefixes
// each line with a three letter level, which is mapped back onto logrus levels.
type NSQLogger struct {
	entry *LogEntry
}

// NSQ returns an adapter for nsq.Consumer.SetLogger and nsq.Producer.SetLogger.
func (l *Logger) NSQ() *NSQLogger {
	return &NSQLogger{entry: l.Plain().WithField("component", "nsq")}
}

func (n *NSQLogger) Output(_ int, s string) error {
	level, msg, ok := strings.Cut(s, " ")
	if !ok {
		n.entry.Info(s)
		return nil
	}
	switch level {
	case nsq.LogLevelDebug.String():
		n.entry.Debug(msg)
	case nsq.LogLevelWarning.String():
		n.entry.Warn(msg)
	case nsq.LogLevelError.String():
		n.entry.Error(msg)
	case nsq.LogLevelInfo.String():
		n.entry.Info(msg)
	default:
		n.entry.Info(s)
	}
	return nil
}

// NSQLevel translates a logrus level name into the go-nsq level filter.
func NSQLevel(level string) nsq.LogLevel {
	switch parseLevel(level).String() {
	case "debug", "trace":
		return nsq.LogLevelDebug
	case "warning":
		return nsq.LogLevelWarning
	case "error", "fatal", "panic":
		return nsq.LogLevelError
	default:
		return nsq.LogLevelInfo
	}
}
