package cache

import (
	"errors"
	"time"
)

type config struct {
	maxEntries    int
	sweepInterval time.Duration
	sweepBatch    int
	now           func() time.Time
	logger        Logger
	onEvict       func(reason string)
}

// Option configures a Cache.
type Option func(*config) error

// WithMaxEntries sets the capacity. Must be greater than zero.
//
// Default: 1000
func WithMaxEntries(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return errors.New("max entries must be greater than zero")
		}
		c.maxEntries = n
		return nil
	}
}

// WithSweepInterval sets how often the background sweeper runs.
//
// Default: 1 minute
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.New("sweep interval must be greater than zero")
		}
		c.sweepInterval = d
		return nil
	}
}

// WithSweepBatch sets how many keys a sweep inspects per lock acquisition.
//
// Default: 256
func WithSweepBatch(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return errors.New("sweep batch must be greater than zero")
		}
		c.sweepBatch = n
		return nil
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}

// WithLogger sets an optional logger.
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithEvictionHook registers a callback invoked with "capacity" or
// "expired" whenever an entry is evicted. It runs with the cache lock held
// and must not call back into the cache.
func WithEvictionHook(hook func(reason string)) Option {
	return func(c *config) error {
		if hook == nil {
			return errors.New("eviction hook cannot be nil")
		}
		c.onEvict = hook
		return nil
	}
}
