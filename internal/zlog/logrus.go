package zlog

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a *logrus.Logger to the Logger interface. This
// is the default production logging facility.
type LogrusLogger struct {
	entry *logrus.Logger
}

// NewLogrus builds a LogrusLogger with sane production defaults (text
// formatter, Info level). Callers who need JSON output or a different
// level should construct their own *logrus.Logger and pass it to
// NewLogrusFrom.
func NewLogrus() *LogrusLogger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &LogrusLogger{entry: l}
}

// NewLogrusFrom wraps an already-configured *logrus.Logger.
func NewLogrusFrom(l *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{entry: l}
}

func (l *LogrusLogger) Debug(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Error(msg)
}
