// Package monitoring holds the diagnostic logger shared by library packages.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// DefaultLogger is the logger Logf starts with.
var DefaultLogger = log.Printf

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = DefaultLogger

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Capture redirects Logf into lines until the returned restore function is
// called. It is safe for concurrent logging.
func Capture(lines *[]string) (restore func()) {
	prev := Logf
	var mu sync.Mutex
	Logf = func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		*lines = append(*lines, fmt.Sprintf(format, v...))
	}
	return func() { Logf = prev }
}
