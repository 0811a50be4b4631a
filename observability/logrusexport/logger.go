// Package logrusexport adapts a logrus.Logger to the scheduler's Logger
// interface.
package logrusexport

import (
	"github.com/sirupsen/logrus"

	"github.com/Swind/go-async-scheduler/core"
)

// Logger forwards scheduler log events to a logrus.Logger with structured
// fields.
type Logger struct {
	logger *logrus.Logger
}

var _ core.Logger = (*Logger)(nil)

// New creates an adapter around the given logrus.Logger. A nil logger
// selects logrus.StandardLogger.
func New(logger *logrus.Logger) *Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Logger{logger: logger}
}

// Debug logs a debug message with fields.
func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.entry(fields).Debug(msg)
}

// Info logs an info message with fields.
func (l *Logger) Info(msg string, fields ...core.Field) {
	l.entry(fields).Info(msg)
}

// Warn logs a warning message with fields.
func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.entry(fields).Warn(msg)
}

// Error logs an error message with fields.
func (l *Logger) Error(msg string, fields ...core.Field) {
	l.entry(fields).Error(msg)
}

func (l *Logger) entry(fields []core.Field) *logrus.Entry {
	if len(fields) == 0 {
		return logrus.NewEntry(l.logger)
	}
	logrusFields := make(logrus.Fields, len(fields))
	for _, f := range fields {
		logrusFields[f.Key] = f.Value
	}
	return l.logger.WithFields(logrusFields)
}
