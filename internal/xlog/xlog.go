// Package xlog is a minimal leveled wrapper over the standard log package,
// used at the handful of call sites (in poll and cmd/echoserver) that need
// to surface an otherwise-swallowed error to somewhere other than an
// observer callback.
package xlog

import (
	"log"
	"os"
)

// Logger is a small leveled logger writing to stderr. Create it with New;
// the zero value is not usable.
type Logger struct {
	std   *log.Logger
	debug bool
}

// Default is the package-level logger used by callers that don't want to
// thread one through explicitly. Debug logging is off by default.
var Default = New(false)

// New creates a Logger. When debug is false, Debugf is a no-op.
func New(debug bool) *Logger {
	return &Logger{
		std:   log.New(os.Stderr, "", log.LstdFlags),
		debug: debug,
	}
}

// Debugf logs a low-priority diagnostic (e.g. a retried EINTR). No-op
// unless the logger was created with debug enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil || !l.debug {
		return
	}
	l.std.Printf("DEBUG "+format, args...)
}

// Errorf logs an error that could not be routed to a caller-supplied
// observer.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.std.Printf("ERROR "+format, args...)
}
