package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/mcdb"
)

var _ mcdb.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New wraps a logrus logger.
func New(l *logrus.Logger) LogrusLogger { return LogrusLogger{E: logrus.NewEntry(l)} }

func (l LogrusLogger) Debug(msg string, f mcdb.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f mcdb.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f mcdb.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f mcdb.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
func (l LogrusLogger) With(f mcdb.Fields) mcdb.Logger {
	return LogrusLogger{E: l.E.WithFields(logrus.Fields(f))}
}
