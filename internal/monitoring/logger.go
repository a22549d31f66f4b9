// Package monitoring carries the diagnostic logger shared by the analysis
// packages and the progress reporter used by long frame loops.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger so tests and batch workers can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = Discard
		return
	}
	Logf = f
}

// Discard is a logger that drops everything.
func Discard(string, ...interface{}) {}

// Prefixed returns a logger that prepends "[component] " to every line and
// forwards to logf, or to the current Logf when logf is nil.
func Prefixed(component string, logf func(format string, v ...interface{})) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		out := logf
		if out == nil {
			out = Logf
		}
		out("["+component+"] "+format, v...)
	}
}
