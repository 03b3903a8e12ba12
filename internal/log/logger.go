// Package log provides the process-wide structured logger.
//
// Components receive a Logger explicitly; GetLogger is for code paths that are
// wired before configuration is loaded (command setup, init-time registration).
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging facade used across vesper.
type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu      sync.RWMutex
	logger  Logger
	outputs *MultiWriter
)

// GetLogger returns the global logger. Before Init it returns an info-level
// stdout logger using the default pattern.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		base := logrus.New()
		base.SetOutput(os.Stdout)
		base.SetLevel(logrus.InfoLevel)
		base.SetFormatter(newFormatter(DefaultPattern, DefaultTimeLayout))
		logger = newLogrusAdapter(base)
	}
	return logger
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() Logger {
	base := logrus.New()
	base.SetOutput(discardWriter{})
	base.SetLevel(logrus.PanicLevel)
	return newLogrusAdapter(base)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
