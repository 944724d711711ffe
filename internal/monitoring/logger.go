// Package monitoring holds the diagnostic logger shared by the pipeline,
// the robot link and the HTTP surface.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests mute it to keep cycle output out of -v runs.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Logger prefixes every message with a component name, e.g. "[robot] ...".
// It resolves Logf at call time so SetLogger applies to loggers created earlier.
type Logger struct {
	component string
}

// New returns a Logger for the named component.
func New(component string) Logger {
	return Logger{component: component}
}

// Printf logs a formatted message under the component prefix.
func (l Logger) Printf(format string, v ...interface{}) {
	if l.component == "" {
		Logf(format, v...)
		return
	}
	Logf("["+l.component+"] "+format, v...)
}
