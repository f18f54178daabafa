// Package timeouts holds the context deadlines used by HTTP handlers and
// background jobs.
//
//   - Ping: health checks
//   - Short: single-document reads
//   - Medium: list queries and statistics
//   - Long: stage transitions, resolutions, disciplinary actions
//   - Scan: the overdue and upcoming deadline scans
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
	DefaultScan   = 2 * time.Minute
)

var (
	mu  sync.RWMutex
	cur = defaults()
)

func defaults() Config {
	return Config{
		Ping:   DefaultPing,
		Short:  DefaultShort,
		Medium: DefaultMedium,
		Long:   DefaultLong,
		Scan:   DefaultScan,
	}
}

// Config holds timeout configuration values.
// Zero values are ignored (current values are kept).
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Scan   time.Duration
}

func get(pick func(Config) time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return pick(cur)
}

// Ping returns the timeout for health checks.
func Ping() time.Duration { return get(func(c Config) time.Duration { return c.Ping }) }

// Short returns the timeout for single-document reads.
func Short() time.Duration { return get(func(c Config) time.Duration { return c.Short }) }

// Medium returns the timeout for list queries and statistics.
func Medium() time.Duration { return get(func(c Config) time.Duration { return c.Medium }) }

// Long returns the timeout for multi-collection writes.
func Long() time.Duration { return get(func(c Config) time.Duration { return c.Long }) }

// Scan returns the timeout for a full deadline scan.
func Scan() time.Duration { return get(func(c Config) time.Duration { return c.Scan }) }

// Configure overrides the non-zero fields of cfg. Call it during startup
// before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	merge(&cur, cfg)
}

func merge(dst *Config, src Config) {
	set := func(d *time.Duration, v time.Duration) {
		if v > 0 {
			*d = v
		}
	}
	set(&dst.Ping, src.Ping)
	set(&dst.Short, src.Short)
	set(&dst.Medium, src.Medium)
	set(&dst.Long, src.Long)
	set(&dst.Scan, src.Scan)
}

// Reset restores all timeouts to their default values.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cur = defaults()
}

// ConfigureFromEnv reads DOCFLOW_TIMEOUT_{PING,SHORT,MEDIUM,LONG,SCAN} as Go
// durations ("2s", "500ms"). Unset or invalid values are skipped. It returns
// the number of values applied.
func ConfigureFromEnv() int {
	var cfg Config
	n := 0
	for name, dst := range map[string]*time.Duration{
		"DOCFLOW_TIMEOUT_PING":   &cfg.Ping,
		"DOCFLOW_TIMEOUT_SHORT":  &cfg.Short,
		"DOCFLOW_TIMEOUT_MEDIUM": &cfg.Medium,
		"DOCFLOW_TIMEOUT_LONG":   &cfg.Long,
		"DOCFLOW_TIMEOUT_SCAN":   &cfg.Scan,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
			n++
		}
	}
	Configure(cfg)
	return n
}

// Current returns the timeout configuration in effect.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

// WithTimeout wraps context.WithTimeout; the returned cancel logs a warning
// when the deadline was hit.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Scan(), h.Log, "overdue scan")
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
