package logger

import (
	"time"

	"github.com/harrison/projsort/internal/models"
)

// MultiLogger forwards every call to each wrapped logger in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger wraps loggers; nil entries are dropped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) Tracef(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Tracef(format, args...)
	}
}

func (m *MultiLogger) Debugf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Debugf(format, args...)
	}
}

func (m *MultiLogger) Infof(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Infof(format, args...)
	}
}

func (m *MultiLogger) Warnf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Warnf(format, args...)
	}
}

func (m *MultiLogger) Errorf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Errorf(format, args...)
	}
}

func (m *MultiLogger) LogStageStart(stage string, detail string) {
	for _, l := range m.loggers {
		l.LogStageStart(stage, detail)
	}
}

func (m *MultiLogger) LogStageResult(result models.StageResult, duration time.Duration) {
	for _, l := range m.loggers {
		l.LogStageResult(result, duration)
	}
}
