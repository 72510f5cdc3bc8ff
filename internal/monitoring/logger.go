// Package monitoring holds the swap-able diagnostic logger shared by the
// simulation packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, log.Printf by default.
// Replace it through SetLogger to redirect or mute diagnostics.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as the package logger. A nil f installs a no-op
// logger, which is how tests keep their output quiet.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
