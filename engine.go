package tokenmiddleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/flownity-dev/flownity-backend-sub000/cache"
	"github.com/flownity-dev/flownity-backend-sub000/config"
	"github.com/flownity-dev/flownity-backend-sub000/core"
	"github.com/flownity-dev/flownity-backend-sub000/introspect"
	"github.com/flownity-dev/flownity-backend-sub000/providers/github"
	"github.com/flownity-dev/flownity-backend-sub000/providers/google"
)

// Metric names emitted by the supporting components of an Engine.
const (
	MetricCacheEvictions  = "auth_token_cache_evictions_total"
	MetricProviderRetries = "auth_provider_retries_total"
)

// DefaultUserAgent is sent to providers unless overridden.
const DefaultUserAgent = "tokengate/1.0"

// Engine is a Core wired with the in-memory cache and both built-in
// providers. Close releases the cache sweeper.
type Engine struct {
	Core  *core.Core
	Cache *cache.Cache
}

type engineConfig struct {
	logger     Logger
	metrics    Metrics
	tracer     Tracer
	httpClient *http.Client
	userAgent  string
	github     []github.Option
	google     []google.Option
}

// EngineOption configures NewEngine.
type EngineOption func(*engineConfig) error

// WithEngineLogger sets the logger shared by every component.
func WithEngineLogger(logger Logger) EngineOption {
	return func(c *engineConfig) error {
		if logger == nil {
			return ErrLoggerNil
		}
		c.logger = logger
		return nil
	}
}

// WithEngineMetrics sets the metrics sink shared by every component.
func WithEngineMetrics(metrics Metrics) EngineOption {
	return func(c *engineConfig) error {
		if metrics == nil {
			return errors.New("metrics cannot be nil")
		}
		c.metrics = metrics
		return nil
	}
}

// WithEngineTracer sets the tracer used for verifications.
func WithEngineTracer(tracer Tracer) EngineOption {
	return func(c *engineConfig) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// WithEngineHTTPClient sets the HTTP client used to reach providers.
func WithEngineHTTPClient(client *http.Client) EngineOption {
	return func(c *engineConfig) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithEngineUserAgent overrides DefaultUserAgent.
func WithEngineUserAgent(ua string) EngineOption {
	return func(c *engineConfig) error {
		c.userAgent = ua
		return nil
	}
}

// WithGitHubOptions passes options to the GitHub adapter.
func WithGitHubOptions(opts ...github.Option) EngineOption {
	return func(c *engineConfig) error {
		c.github = append(c.github, opts...)
		return nil
	}
}

// WithGoogleOptions passes options to the Google adapter.
func WithGoogleOptions(opts ...google.Option) EngineOption {
	return func(c *engineConfig) error {
		c.google = append(c.google, opts...)
		return nil
	}
}

// NewEngine builds an Engine from validated environment configuration.
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := tokenmiddleware.NewEngine(cfg, tokenmiddleware.WithEngineLogger(slog.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
func NewEngine(cfg config.Config, opts ...EngineOption) (*Engine, error) {
	ec := &engineConfig{
		metrics:   &NoopMetrics{},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		if err := opt(ec); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	cacheOpts := []cache.Option{
		cache.WithMaxEntries(cfg.CacheMaxSize),
		cache.WithSweepInterval(cfg.CacheSweepInterval),
		cache.WithEvictionHook(func(reason string) {
			ec.metrics.IncCounter(MetricCacheEvictions, map[string]string{"reason": reason})
		}),
	}
	clientOpts := []introspect.Option{
		introspect.WithUserAgent(ec.userAgent),
		introspect.WithRetryHook(func(e introspect.RetryEvent) {
			ec.metrics.IncCounter(MetricProviderRetries, map[string]string{"status": strconv.Itoa(e.StatusCode)})
		}),
	}
	coreOpts := []core.Option{
		core.WithConfig(cfg.Core()),
		core.WithMetrics(ec.metrics),
	}
	if ec.httpClient != nil {
		clientOpts = append(clientOpts, introspect.WithHTTPClient(ec.httpClient))
	}
	if ec.logger != nil {
		cacheOpts = append(cacheOpts, cache.WithLogger(ec.logger))
		clientOpts = append(clientOpts, introspect.WithLogger(ec.logger))
		coreOpts = append(coreOpts, core.WithLogger(ec.logger))
	}
	if ec.tracer != nil {
		coreOpts = append(coreOpts, core.WithTracer(ec.tracer))
	}

	client, err := introspect.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create introspection client: %w", err)
	}
	githubAdapter, err := github.New(client, ec.github...)
	if err != nil {
		return nil, fmt.Errorf("failed to create github adapter: %w", err)
	}
	googleAdapter, err := google.New(client, ec.google...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google adapter: %w", err)
	}

	verificationCache, err := cache.New(cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	coreOpts = append(coreOpts,
		core.WithCache(verificationCache),
		core.WithAdapters(githubAdapter, googleAdapter),
	)
	c, err := core.New(coreOpts...)
	if err != nil {
		_ = verificationCache.Close()
		return nil, fmt.Errorf("failed to create core: %w", err)
	}

	return &Engine{Core: c, Cache: verificationCache}, nil
}

// Close stops the cache sweeper and drops every cached identity.
func (e *Engine) Close() error {
	return e.Cache.Close()
}
