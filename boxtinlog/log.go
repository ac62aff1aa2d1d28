// Package boxtinlog provides the level-gated logging surface used across the
// rewriter. It keeps the teacher's Log(msg, level) call shape (see
// jacobin/log and jacobin/trace) but backs it with logrus; its helpers
// attach structured fields (class and kind, plus member and action for a
// denial).
package boxtinlog

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Level mirrors the teacher's trace levels (TRACE_INST, FINE, SEVERE, ...)
// collapsed to the handful the rewriter actually needs.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case DEBUG:
		return logrus.DebugLevel
	case INFO:
		return logrus.InfoLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

var (
	mu      sync.RWMutex
	backend = logrus.New()
)

// Init resets the backend logger. Called once from agent activation; safe to
// call again in tests.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	backend = logrus.New()
	backend.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel sets the minimum level that reaches the backend.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	backend.SetLevel(l.logrusLevel())
}

// Fields carries the structured context attached to a log line, such as the
// class, the kind of event, and for a denial the member and action.
type Fields map[string]any

// Log writes msg at the given level with no structured fields, matching the
// teacher's plain Log(msg, level) call.
func Log(msg string, level Level) error {
	return LogWithFields(msg, level, nil)
}

// LogWithFields is Log plus structured context.
func LogWithFields(msg string, level Level, fields Fields) error {
	mu.RLock()
	b := backend
	mu.RUnlock()

	entry := logrus.NewEntry(b)
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	switch level {
	case DEBUG:
		entry.Debug(msg)
	case WARN:
		entry.Warn(msg)
	case ERROR:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
	return nil
}

// IgnorableFormatError logs a spec §7.1 ignorable class-format error at debug
// level.
func IgnorableFormatError(className, msg string) {
	_ = LogWithFields(msg, DEBUG, Fields{"class": className, "kind": "ignorable-format-error"})
}

// HardFormatError logs a spec §7.2 hard class-format error at warn level
// together with the class name and cause.
func HardFormatError(className string, cause error) {
	_ = LogWithFields(cause.Error(), WARN, Fields{"class": className, "kind": "hard-format-error"})
}

// Denial logs a spec §7.3 policy-induced denial at info level.
func Denial(className, member, action string) {
	_ = LogWithFields("denied call", INFO, Fields{
		"class": className, "member": member, "action": action, "kind": "denial",
	})
}
