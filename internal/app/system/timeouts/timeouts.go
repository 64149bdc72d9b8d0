// Package timeouts provides centralized timeout values for handler and
// storage operations.
//
// These timeouts are used with context.WithTimeout around calls to the
// storage backend. Using centralized values keeps HTTP uploads, realtime
// flushes and group teardown consistent.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks against the storage backend
//   - Storage: writing, streaming or deleting file content
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing    = 2 * time.Second
	DefaultStorage = 60 * time.Second
)

var mu sync.RWMutex

var (
	ping    = DefaultPing
	storage = DefaultStorage
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Storage returns the timeout for one storage write, read or delete.
func Storage() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return storage
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping    time.Duration
	Storage time.Duration
}

// Configure sets custom timeout values. Zero values in the config are
// ignored. Call it during startup before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Storage > 0 {
		storage = cfg.Storage
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	storage = DefaultStorage
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Storage: storage}
}

// WithTimeout creates a context with timeout and returns a cancel function
// that logs a warning if the deadline was exceeded.
//
// Example:
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Storage(), r.log, "flush upload")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
