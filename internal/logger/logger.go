// Package logger writes ewsync's diagnostic output.
//
// Nothing is written unless verbose mode is on (the --verbose flag). Tracing
// (the --trace flag) additionally dumps the XML exchanged with Exchange, which
// is the quickest way to see why an autodiscover hop or a sync page failed.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// MaxPayload is the number of body bytes Payload writes before truncating.
const MaxPayload = 64 << 10

var (
	mu      sync.RWMutex
	verbose bool
	tracing bool
	output  io.Writer = os.Stderr
)

// SetVerbose turns diagnostic output on or off.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose reports whether diagnostic output is on.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetTrace turns payload tracing on or off. Tracing implies verbose output.
func SetTrace(v bool) {
	mu.Lock()
	defer mu.Unlock()
	tracing = v
	if v {
		verbose = true
	}
}

// IsTracing reports whether request and response bodies are dumped.
func IsTracing() bool {
	mu.RLock()
	defer mu.RUnlock()
	return tracing
}

// SetOutput redirects diagnostic output, os.Stderr by default.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug logs protocol detail such as each HTTP round trip.
func Debug(format string, args ...any) { logf("DEBUG", format, args...) }

// Info logs a decision the user may want to know about.
func Info(format string, args ...any) { logf("INFO", format, args...) }

// Warn logs a recoverable problem: a rejected sync state, a cache that
// could not be read, an ignored setting.
func Warn(format string, args ...any) { logf("WARN", format, args...) }

func logf(level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if !verbose {
		return
	}
	fmt.Fprintf(output, "["+level+"] "+format+"\n", args...)
}

// Payload dumps an XML body under label when tracing is on.
// Bodies longer than MaxPayload are cut and marked as such.
func Payload(label string, body []byte) {
	mu.RLock()
	defer mu.RUnlock()
	if !tracing {
		return
	}

	shown := bytes.TrimSpace(body)
	suffix := ""
	if len(shown) > MaxPayload {
		suffix = fmt.Sprintf("\n... %d more bytes", len(shown)-MaxPayload)
		shown = shown[:MaxPayload]
	}
	fmt.Fprintf(output, "[TRACE] %s (%d bytes)\n%s%s\n", label, len(body), shown, suffix)
}
