// Package logger builds the single process-wide zerolog logger used across
// the Trading Core. Every package either takes a *zerolog.Logger explicitly
// or falls back to logger.L() so log lines carry consistent fields.
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once    sync.Once
	base    zerolog.Logger
	current zerolog.Logger
	mu      sync.RWMutex
)

// Init configures the base logger. Safe to call once at process start;
// subsequent calls are no-ops so tests and the composition root can both
// call it without fighting over global state.
func Init(level zerolog.Level, pretty bool) {
	once.Do(func() {
		w := os.Stderr
		if pretty {
			base = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
		} else {
			base = zerolog.New(w).With().Timestamp().Logger()
		}
		base = base.Level(level)
		mu.Lock()
		current = base
		mu.Unlock()
	})
}

// L returns the current process logger, initializing a sane default
// (info level, JSON) the first time it is called by a test or a package
// that never ran through the composition root.
func L() *zerolog.Logger {
	Init(zerolog.InfoLevel, false)
	mu.RLock()
	l := current
	mu.RUnlock()
	return &l
}

// With returns a child logger annotated with tenant_id, useful at every
// handler/use-case boundary that touches tenant-scoped data.
func With(tenantID int64) zerolog.Logger {
	return L().With().Int64("tenant_id", tenantID).Logger()
}
