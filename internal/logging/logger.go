// Package logging provides structured logging for the shopsync core.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// global logger instance
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger.
func Init(out io.Writer, level string) {
	once.Do(func() {
		global = newLogger(out, level)
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

// New returns an isolated logger, used by tests and by components that
// should not share the process-wide instance.
func New(out io.Writer, level string) *logrus.Logger {
	return newLogger(out, level)
}

func newLogger(out io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})

	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	l.SetLevel(lv)
	return l
}

// Convenience functions using the global logger

func Debug(message string, fields ...map[string]interface{}) {
	withFields(fields).Debug(message)
}

func Info(message string, fields ...map[string]interface{}) {
	withFields(fields).Info(message)
}

func Warn(message string, fields ...map[string]interface{}) {
	withFields(fields).Warn(message)
}

func Error(message string, err error, fields ...map[string]interface{}) {
	entry := withFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}

// withFields merges field maps into a single log entry.
func withFields(fields []map[string]interface{}) *logrus.Entry {
	entry := logrus.NewEntry(Get())
	for _, f := range fields {
		entry = entry.WithFields(logrus.Fields(f))
	}
	return entry
}
