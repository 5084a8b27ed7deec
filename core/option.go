package core

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the process-wide verification defaults. Individual call sites
// may override them through NewPolicy.
type Config struct {
	// CacheTTL is how long a verified identity is trusted. Zero disables caching.
	CacheTTL time.Duration
	// RequestTimeout is the deadline of each provider attempt.
	RequestTimeout time.Duration
	// MaxRetries is the number of extra provider attempts after the first.
	MaxRetries int
	// RetryBackoff is the wait before the first retry; it doubles each time.
	RetryBackoff time.Duration
	// Required rejects requests without a credential.
	Required bool
	// AllowedProviders restricts which providers are accepted. Empty means
	// every provider with a registered adapter.
	AllowedProviders []ProviderTag
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:       300 * time.Second,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		RetryBackoff:   200 * time.Millisecond,
		Required:       true,
	}
}

// Option is a function that configures the Core.
// Options return errors to enable validation during construction.
type Option func(*Core) error

// New creates a Core.
//
// A cache and at least one adapter are required. The defaults policy is
// validated here, so a misconfigured Core fails at startup rather than on
// the first request.
//
// Example:
//
//	c, err := core.New(
//	    core.WithCache(verificationCache),
//	    core.WithAdapters(github.New(client), google.New(client)),
//	    core.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
func New(opts ...Option) (*Core, error) {
	c := &Core{
		adapters: make(map[ProviderTag]Adapter),
		config:   DefaultConfig(),
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.cache == nil {
		return nil, errors.New("cache is required (use WithCache option)")
	}
	if len(c.adapters) == 0 {
		return nil, errNoAdapters
	}
	if c.identifier == nil {
		identifier, err := NewIdentifier(DefaultPatterns()...)
		if err != nil {
			return nil, fmt.Errorf("failed to build default identifier: %w", err)
		}
		c.identifier = identifier
	}

	defaults, err := c.NewPolicy()
	if err != nil {
		return nil, fmt.Errorf("invalid default configuration: %w", err)
	}
	c.defaults = defaults

	return c, nil
}

// WithCache sets the verification cache. This is a required option.
func WithCache(cache Cache) Option {
	return func(c *Core) error {
		if cache == nil {
			return errors.New("cache cannot be nil")
		}
		c.cache = cache
		return nil
	}
}

// WithAdapters registers provider adapters. Registering two adapters for the
// same provider is an error.
func WithAdapters(adapters ...Adapter) Option {
	return func(c *Core) error {
		for _, a := range adapters {
			if a == nil {
				return errors.New("adapter cannot be nil")
			}
			tag := a.Provider()
			if tag == "" {
				return errors.New("adapter provider tag cannot be empty")
			}
			if _, ok := c.adapters[tag]; ok {
				return fmt.Errorf("duplicate adapter for provider %q", tag)
			}
			c.adapters[tag] = a
		}
		return nil
	}
}

// WithIdentifier overrides the provider identifier.
//
// Default: NewIdentifier(DefaultPatterns()...)
func WithIdentifier(identifier *Identifier) Option {
	return func(c *Core) error {
		if identifier == nil {
			return errors.New("identifier cannot be nil")
		}
		c.identifier = identifier
		return nil
	}
}

// WithConfig replaces the process-wide defaults.
//
// Default: DefaultConfig()
func WithConfig(cfg Config) Option {
	return func(c *Core) error {
		cfg.AllowedProviders = append([]ProviderTag(nil), cfg.AllowedProviders...)
		c.config = cfg
		return nil
	}
}

// WithLogger sets an optional logger.
func WithLogger(logger Logger) Option {
	return func(c *Core) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(c *Core) error {
		if metrics == nil {
			return errors.New("metrics cannot be nil")
		}
		c.metrics = metrics
		return nil
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(c *Core) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// WithClock overrides the time source used for durations and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Core) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}
