// Package config loads the process-wide verification settings from the
// environment. Every value is validated once at startup; an invalid value is
// reported with the name of the variable that holds it.
package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// Environment variable names.
const (
	EnvCacheTTL           = "AUTH_CACHE_TTL_SECONDS"
	EnvRequestTimeout     = "AUTH_REQUEST_TIMEOUT_MS"
	EnvMaxRetries         = "AUTH_MAX_RETRIES"
	EnvRetryBackoff       = "AUTH_RETRY_BACKOFF_MS"
	EnvCacheMaxSize       = "AUTH_CACHE_MAX_SIZE"
	EnvCacheSweepInterval = "AUTH_CACHE_SWEEP_INTERVAL_SECONDS"
	EnvVerboseLogging     = "AUTH_VERBOSE_LOGGING"
	EnvAllowedProviders   = "AUTH_ALLOWED_PROVIDERS"
)

// DefaultAllowedProviders is used when AUTH_ALLOWED_PROVIDERS is unset. It
// cannot live in the struct tag because envdecode splits tags on commas.
const DefaultAllowedProviders = "github,google"

// knownProviders are the tags AUTH_ALLOWED_PROVIDERS may name.
var knownProviders = []core.ProviderTag{core.ProviderGitHub, core.ProviderGoogle}

// raw mirrors the environment as strings so that parse errors can name the
// variable instead of surfacing a reflection error.
type raw struct {
	CacheTTL           string `env:"AUTH_CACHE_TTL_SECONDS,default=300"`
	RequestTimeout     string `env:"AUTH_REQUEST_TIMEOUT_MS,default=5000"`
	MaxRetries         string `env:"AUTH_MAX_RETRIES,default=2"`
	RetryBackoff       string `env:"AUTH_RETRY_BACKOFF_MS,default=200"`
	CacheMaxSize       string `env:"AUTH_CACHE_MAX_SIZE,default=1000"`
	CacheSweepInterval string `env:"AUTH_CACHE_SWEEP_INTERVAL_SECONDS,default=60"`
	VerboseLogging     string `env:"AUTH_VERBOSE_LOGGING,default=false"`
	AllowedProviders   string `env:"AUTH_ALLOWED_PROVIDERS"`
}

// Config is the validated environment configuration.
type Config struct {
	CacheTTL           time.Duration
	RequestTimeout     time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	CacheMaxSize       int
	CacheSweepInterval time.Duration
	VerboseLogging     bool
	AllowedProviders   []core.ProviderTag
}

// Error reports an invalid environment variable.
type Error struct {
	Variable string
	Value    string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s=%q: %s", e.Variable, e.Value, e.Reason)
}

// Load reads and validates the configuration from the environment.
func Load() (Config, error) {
	var r raw
	if err := envdecode.Decode(&r); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return r.parse()
}

func (r raw) parse() (Config, error) {
	var cfg Config

	var err error
	if cfg.CacheTTL, err = duration(EnvCacheTTL, r.CacheTTL, 0, time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = duration(EnvRequestTimeout, r.RequestTimeout, 1, time.Millisecond); err != nil {
		return Config{}, err
	}

	if cfg.MaxRetries, err = integer(EnvMaxRetries, r.MaxRetries, 0); err != nil {
		return Config{}, err
	}

	if cfg.RetryBackoff, err = duration(EnvRetryBackoff, r.RetryBackoff, 0, time.Millisecond); err != nil {
		return Config{}, err
	}

	if cfg.CacheMaxSize, err = integer(EnvCacheMaxSize, r.CacheMaxSize, 1); err != nil {
		return Config{}, err
	}

	if cfg.CacheSweepInterval, err = duration(EnvCacheSweepInterval, r.CacheSweepInterval, 1, time.Second); err != nil {
		return Config{}, err
	}

	verbose, err := strconv.ParseBool(strings.TrimSpace(r.VerboseLogging))
	if err != nil {
		return Config{}, &Error{Variable: EnvVerboseLogging, Value: r.VerboseLogging, Reason: "must be a boolean"}
	}
	cfg.VerboseLogging = verbose

	providers := r.AllowedProviders
	if providers == "" {
		providers = DefaultAllowedProviders
	}
	for _, p := range strings.Split(providers, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tag := core.ProviderTag(strings.ToLower(p))
		if !slices.Contains(knownProviders, tag) {
			return Config{}, &Error{Variable: EnvAllowedProviders, Value: r.AllowedProviders,
				Reason: fmt.Sprintf("unknown provider %q", p)}
		}
		if slices.Contains(cfg.AllowedProviders, tag) {
			return Config{}, &Error{Variable: EnvAllowedProviders, Value: r.AllowedProviders,
				Reason: fmt.Sprintf("duplicate provider %q", p)}
		}
		cfg.AllowedProviders = append(cfg.AllowedProviders, tag)
	}
	if len(cfg.AllowedProviders) == 0 {
		return Config{}, &Error{Variable: EnvAllowedProviders, Value: r.AllowedProviders, Reason: "must list at least one provider"}
	}

	return cfg, nil
}

// duration parses a whole number of unit, rejecting values that would
// overflow time.Duration.
func duration(name, value string, floor int, unit time.Duration) (time.Duration, error) {
	n, err := integer(name, value, floor)
	if err != nil {
		return 0, err
	}
	if ceiling := int64(math.MaxInt64 / unit); int64(n) > ceiling {
		return 0, &Error{Variable: name, Value: value, Reason: fmt.Sprintf("must be <= %d", ceiling)}
	}
	return time.Duration(n) * unit, nil
}

func integer(name, value string, floor int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &Error{Variable: name, Value: value, Reason: "must be an integer"}
	}
	if n < floor {
		return 0, &Error{Variable: name, Value: value, Reason: fmt.Sprintf("must be >= %d", floor)}
	}
	return n, nil
}

// Core returns the engine defaults described by the configuration.
// Credentials are required unless a route opts out.
func (c Config) Core() core.Config {
	return core.Config{
		CacheTTL:         c.CacheTTL,
		RequestTimeout:   c.RequestTimeout,
		MaxRetries:       c.MaxRetries,
		RetryBackoff:     c.RetryBackoff,
		Required:         true,
		AllowedProviders: append([]core.ProviderTag(nil), c.AllowedProviders...),
	}
}
