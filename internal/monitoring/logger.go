// Package monitoring provides the shared diagnostic logger for the hot
// paths (receiver, ingestion). Unlike errors returned to the caller,
// these are advisory messages; tests mute them with SetLogger(nil).
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// and may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
