// Package monitoring holds the process-wide diagnostic logger used by the
// feed loader, pipeline, store and web monitor.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debugEnabled atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug turns per-frame diagnostics on or off.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether per-frame diagnostics are on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debugf logs through Logf only when debug output is enabled. Use it for
// anything emitted once per frame so normal runs stay quiet.
func Debugf(format string, v ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	Logf("[debug] "+format, v...)
}
