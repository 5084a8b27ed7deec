package core

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flownity-dev/flownity-backend-sub000/introspect"
)

// Logger defines an optional logging interface compatible with log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Cache stores verified identities keyed by raw credential. Implementations
// must hash the credential before storing it and must treat expired entries
// as absent.
type Cache interface {
	Get(credential string) (Identity, bool)
	Set(credential string, identity Identity, ttl time.Duration)
}

// Verified is what an Adapter returns for a credential the provider accepted.
type Verified struct {
	Identity Identity
	// ExpiresAt is the credential's own expiry, if the provider exposed one.
	ExpiresAt time.Time
}

// Adapter verifies credentials issued by one provider.
//
// Verify must return a *VerificationError (or an error wrapping one) for
// every rejection so the engine can report the right kind.
type Adapter interface {
	Provider() ProviderTag
	Verify(ctx context.Context, credential string, cfg introspect.Config) (Verified, error)
}

// Metrics is a generic metrics sink.
type Metrics interface {
	IncCounter(name string, tags map[string]string)
	ObserveHistogram(name string, value float64, tags map[string]string)
	SetGauge(name string, value float64, tags map[string]string)
}

// Tracer starts spans around verifications.
type Tracer interface {
	StartSpan(ctx context.Context, operationName string) (context.Context, Span)
}

// Span is a unit of traced work.
type Span interface {
	SetTag(key string, value any)
	Finish()
}

// Metric names emitted by Core.
const (
	MetricVerifications    = "auth_token_verifications_total"
	MetricVerificationTime = "auth_token_verification_duration_seconds"
	MetricCacheLookups     = "auth_token_cache_lookups_total"
	MetricCacheEntries     = "auth_token_cache_entries"
	MetricProviderCallTime = "auth_provider_call_duration_seconds"
)

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)                {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetTag(string, any) {}
func (noopSpan) Finish()            {}

// Core is the verification orchestrator. It is safe for concurrent use.
type Core struct {
	identifier *Identifier
	cache      Cache
	adapters   map[ProviderTag]Adapter
	config     Config
	defaults   Policy

	logger  Logger
	metrics Metrics
	tracer  Tracer
	now     func() time.Time

	inflight singleflight.Group
}

// attempt carries log and metric context out of a single verification.
type attempt struct {
	provider    ProviderTag
	fingerprint string
}

// Verify runs the verification state machine for one Authorization header
// value. A zero Policy selects the defaults the Core was built with.
//
// Terminal states:
//   - Success when the credential was served from the cache or accepted by
//     its provider
//   - NoCredential when the header is absent and the policy is optional
//   - Rejected in every other case
func (c *Core) Verify(ctx context.Context, header string, p Policy) Outcome {
	if !p.valid {
		p = c.defaults
	}

	ctx, span := c.tracer.StartSpan(ctx, "auth.verify")
	defer span.Finish()

	start := c.now()
	outcome, a := c.verify(ctx, header, p)
	duration := c.now().Sub(start)

	span.SetTag("auth.status", outcome.Status.String())
	if a.provider != "" {
		span.SetTag("auth.provider", string(a.provider))
	}
	if outcome.Status == StatusRejected {
		span.SetTag("auth.error_kind", string(outcome.Kind()))
	}

	c.record(outcome, a, duration)
	c.log(header, outcome, a, duration)
	return outcome
}

func (c *Core) verify(ctx context.Context, header string, p Policy) (Outcome, attempt) {
	var a attempt

	credential, verr := ExtractBearer(header)
	if verr != nil {
		if verr.Kind == KindCredentialMissing && !p.required {
			return NoCredential(), a
		}
		return Rejected(verr), a
	}
	a.fingerprint = Fingerprint(credential)

	if identity, ok := c.cache.Get(credential); ok {
		c.metrics.IncCounter(MetricCacheLookups, map[string]string{"result": "hit"})
		a.provider = identity.Provider
		// The cache is shared across call sites, so the restriction is
		// checked on every hit.
		if !p.allows(identity.Provider) {
			return Rejected(restricted(identity.Provider)), a
		}
		return Success(identity, true), a
	}
	c.metrics.IncCounter(MetricCacheLookups, map[string]string{"result": "miss"})

	provider, verr := c.identifier.Identify(credential)
	if verr != nil {
		return Rejected(verr), a
	}
	a.provider = provider

	if !p.allows(provider) {
		return Rejected(restricted(provider)), a
	}

	adapter, ok := c.adapters[provider]
	if !ok {
		verr := NewVerificationError(KindUnknownProvider, "no verifier is registered for provider", nil)
		verr.Provider = provider
		return Rejected(verr), a
	}

	identity, err := c.introspect(ctx, adapter, credential, p)
	if err != nil {
		return Rejected(asVerificationError(err, provider)), a
	}
	return Success(identity, false), a
}

// introspect calls the adapter, coalescing concurrent misses for the same
// credential into one provider call. The caller that starts the call decides
// its timeout, retries and cache TTL. The shared call is detached from that
// caller's cancellation; each waiter observes only its own ctx.
func (c *Core) introspect(ctx context.Context, adapter Adapter, credential string, p Policy) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, NewVerificationError(KindRequestTimeout, "request cancelled before provider call", err)
	}

	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(HashCredential(credential), func() (any, error) {
		callCtx, span := c.tracer.StartSpan(shared, "auth.provider_call")
		defer span.Finish()
		span.SetTag("auth.provider", string(adapter.Provider()))

		start := c.now()
		verified, err := adapter.Verify(callCtx, credential, p.introspect)
		result := "success"
		if err != nil {
			result = string(KindOf(err))
		}
		span.SetTag("auth.result", result)
		c.metrics.ObserveHistogram(MetricProviderCallTime, c.now().Sub(start).Seconds(), map[string]string{
			"provider": string(adapter.Provider()),
			"result":   result,
		})
		if err != nil {
			return nil, err
		}

		ttl, err := c.cacheTTL(verified, p.cacheTTL)
		if err != nil {
			return nil, err
		}
		c.cache.Set(credential, verified.Identity, ttl)
		c.reportCacheSize()

		return verified.Identity, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Identity{}, res.Err
		}
		return res.Val.(Identity), nil
	case <-ctx.Done():
		return Identity{}, NewVerificationError(KindRequestTimeout, "request cancelled while waiting for provider", ctx.Err())
	}
}

// cacheTTL caps ttl at the credential's remaining lifetime.
func (c *Core) cacheTTL(v Verified, ttl time.Duration) (time.Duration, error) {
	if v.ExpiresAt.IsZero() {
		return ttl, nil
	}
	remaining := v.ExpiresAt.Sub(c.now())
	if remaining <= 0 {
		verr := NewVerificationError(KindInvalidOrInsufficientToken, "token has expired", nil)
		verr.Provider = v.Identity.Provider
		return 0, verr
	}
	return min(ttl, remaining), nil
}

func (c *Core) reportCacheSize() {
	sized, ok := c.cache.(interface{ Len() int })
	if !ok {
		return
	}
	c.metrics.SetGauge(MetricCacheEntries, float64(sized.Len()), map[string]string{})
}

func (c *Core) record(o Outcome, a attempt, d time.Duration) {
	provider := string(a.provider)
	if provider == "" {
		provider = "none"
	}
	kind := string(o.Kind())
	if kind == "" {
		kind = "none"
	}

	c.metrics.IncCounter(MetricVerifications, map[string]string{
		"provider": provider,
		"status":   o.Status.String(),
		"kind":     kind,
		"cached":   strconv.FormatBool(o.Cached),
	})
	c.metrics.ObserveHistogram(MetricVerificationTime, d.Seconds(), map[string]string{
		"provider": provider,
		"status":   o.Status.String(),
	})
}

// log never includes the credential or the header value, only whether a
// header was present and its scheme.
func (c *Core) log(header string, o Outcome, a attempt, d time.Duration) {
	if c.logger == nil {
		return
	}

	args := []any{
		"status", o.Status.String(),
		"header_present", header != "",
		"duration", d,
	}
	if scheme := HeaderScheme(header); scheme != "" {
		args = append(args, "scheme", scheme)
	}
	if a.provider != "" {
		args = append(args, "provider", string(a.provider))
	}
	if a.fingerprint != "" {
		args = append(args, "credential_fingerprint", a.fingerprint)
	}

	switch o.Status {
	case StatusSuccess:
		c.logger.Debug("token verified", append(args, "cached", o.Cached, "subject", o.Identity.ID)...)
	case StatusNoCredential:
		c.logger.Debug("no credential presented, continuing unauthenticated", args...)
	default:
		args = append(args, "kind", string(o.Err.Kind), "error", o.Err)
		if o.Err.ProviderStatus != 0 {
			args = append(args, "provider_status", o.Err.ProviderStatus)
		}
		switch KindSeverity(o.Err.Kind) {
		case SeveritySystem:
			c.logger.Error("token verification failed", args...)
		case SeverityDegraded:
			c.logger.Warn("token verification failed", args...)
		default:
			c.logger.Info("token rejected", args...)
		}
	}
}

func restricted(provider ProviderTag) *VerificationError {
	verr := NewVerificationError(KindProviderRestricted, "provider is not allowed for this endpoint", nil)
	verr.Provider = provider
	return verr
}

// errNoAdapters is returned by New when no adapter was registered.
var errNoAdapters = errors.New("at least one adapter is required (use WithAdapters option)")
