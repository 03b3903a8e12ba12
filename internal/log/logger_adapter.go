package log

import "github.com/sirupsen/logrus"

// logrusAdapter binds Logger to a logrus entry. The print and level methods
// come from the embedded entry; the With* methods are wrapped so that derived
// loggers stay behind the Logger interface.
type logrusAdapter struct {
	*logrus.Entry
}

var _ Logger = (*logrusAdapter)(nil)

func newLogrusAdapter(l *logrus.Logger) *logrusAdapter {
	return &logrusAdapter{Entry: logrus.NewEntry(l)}
}

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{Entry: l.Entry.WithField(field, value)}
}

func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{Entry: l.Entry.WithFields(fields)}
}

func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{Entry: l.Entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool { return l.Logger.IsLevelEnabled(logrus.TraceLevel) }
func (l *logrusAdapter) IsDebugEnabled() bool { return l.Logger.IsLevelEnabled(logrus.DebugLevel) }
func (l *logrusAdapter) IsInfoEnabled() bool  { return l.Logger.IsLevelEnabled(logrus.InfoLevel) }
