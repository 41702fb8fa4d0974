// Package monitoring holds the process-wide diagnostic logger shared by the
// storage, overlay and API packages.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

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

// Capture redirects Logf into memory until restore is called. lines returns
// the formatted messages logged so far and is safe to call while other
// goroutines are still logging.
func Capture() (lines func() []string, restore func()) {
	prev := Logf
	var mu sync.Mutex
	var captured []string
	Logf = func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		captured = append(captured, fmt.Sprintf(format, v...))
	}
	lines = func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(captured))
		copy(out, captured)
		return out
	}
	return lines, func() { Logf = prev }
}
