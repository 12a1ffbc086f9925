// Package monitoring provides the swappable diagnostic logger shared by the
// robot's long-running loops. Loops log through Logf so tests can mute or
// capture output, and so a deployment can redirect everything without
// touching loop code.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a log function that prepends the given subsystem tag to
// every message, keeping interleaved output from the sensor and control loops
// attributable.
func Prefixed(tag string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(tag+": "+format, v...)
	}
}
