// Package debug provides opt-in diagnostic logging, enabled by PROGRAMMATOR_DEBUG=1.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	enabled = os.Getenv("PROGRAMMATOR_DEBUG") == "1"
	logger  = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format("15:04:05.000"))
			}
			return a
		},
	}))
}

// Logf writes a debug message to stderr if debug logging is enabled.
func Logf(format string, args ...any) {
	mu.RLock()
	on, l := enabled, logger
	mu.RUnlock()
	if !on {
		return
	}
	l.Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Enabled returns true if debug logging is enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Configure switches debug logging on or off and redirects it to w.
// A nil w keeps the current destination.
func Configure(on bool, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	enabled = on
	if w != nil {
		logger = newLogger(w)
	}
}
