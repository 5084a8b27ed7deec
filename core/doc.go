/*
Package core provides the framework-agnostic token verification engine used by
every transport adapter (net/http, Gin, Echo, gRPC).

# Architecture

	┌─────────────────────────────────────────────┐
	│         Transport Adapters                  │
	│  (net/http, Gin, Echo, gRPC)                │
	└────────────────┬────────────────────────────┘
	                 │ Verify(ctx, header, policy)
	                 ▼
	┌─────────────────────────────────────────────┐
	│          Core (THIS PACKAGE)                │
	│  • Bearer extraction                        │
	│  • Provider identification                  │
	│  • Cache lookup and restriction check       │
	└───────┬─────────────────────────┬───────────┘
	        │                         │
	        ▼                         ▼
	┌───────────────┐        ┌────────────────────┐
	│ Cache         │        │ Adapters           │
	│ (cache pkg)   │        │ (providers/...)    │
	└───────────────┘        └─────────┬──────────┘
	                                   ▼
	                         ┌────────────────────┐
	                         │ introspect.Client  │
	                         └────────────────────┘

# Basic Usage

	verificationCache, err := cache.New()
	if err != nil {
	    log.Fatal(err)
	}
	defer verificationCache.Close()

	client, err := introspect.New()
	if err != nil {
	    log.Fatal(err)
	}

	c, err := core.New(
	    core.WithCache(verificationCache),
	    core.WithAdapters(github.New(client), google.New(client)),
	)
	if err != nil {
	    log.Fatal(err)
	}

	outcome := c.Verify(ctx, r.Header.Get("Authorization"), core.Policy{})
	switch outcome.Status {
	case core.StatusSuccess:
	    ctx = core.SetIdentity(ctx, *outcome.Identity)
	case core.StatusRejected:
	    // map outcome.Err.Kind to a response
	}

# Per-route Policies

Policies override the process defaults for a single route. They are validated
when built, never per request:

	adminOnly := c.MustPolicy(core.AllowedProviders(core.ProviderGitHub))
	optional := c.MustPolicy(core.Required(false))

A cached identity is shared by every route, so the provider restriction is
checked on cache hits as well as on misses.

# Caching

Successful verifications are cached for the policy's TTL, capped at the
credential's own expiry when the provider reports one. Failures are never
cached. A revoked credential keeps working until its cache entry expires.

# Error Handling

Rejections carry a *VerificationError. Use errors.Is with the sentinel errors
or inspect Kind directly:

	if errors.Is(outcome.Err, core.ErrRateLimited) {
	    w.Header().Set("Retry-After", strconv.Itoa(int(outcome.Err.RetryAfter.Seconds())))
	}
*/
package core
