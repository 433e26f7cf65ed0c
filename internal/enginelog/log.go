// Package enginelog is the small stdlib-log wrapper the core's
// components log through, matching the teacher's plain log.Printf
// style rather than a structured logging library.
package enginelog

import "log"

// Logger is the logf shape every component (pipeline, worker,
// storagewriter, driver) accepts.
type Logger func(format string, args ...any)

// Std returns a Logger writing to the standard library's default
// logger, prefixed so job output is distinguishable from other log
// lines sharing the same process.
func Std(prefix string) Logger {
	return func(format string, args ...any) {
		log.Printf(prefix+format, args...)
	}
}

// Discard is a Logger that drops every message, for tests.
func Discard(string, ...any) {}
