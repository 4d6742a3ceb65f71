// Package monitoring holds the process-wide diagnostic logger. Training
// loops log through it so tests can mute per-epoch output.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Scope returns a logger that prefixes every line with "prefix: " and writes
// through the current package logger, so SetLogger still controls scoped
// output.
func Scope(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(prefix+": "+format, v...)
	}
}
