/*
Package tokenmiddleware provides HTTP middleware that authenticates requests
by verifying opaque bearer credentials with the identity provider that issued
them.

The package is the net/http (and Gin) transport adapter around the
verification engine in package core. core classifies the credential by
shape, consults the in-memory cache, and falls back to a provider
introspection call; this package maps the resulting outcome onto HTTP.

# Quick Start

	import (
	    "github.com/flownity-dev/flownity-backend-sub000"
	    "github.com/flownity-dev/flownity-backend-sub000/config"
	    "github.com/flownity-dev/flownity-backend-sub000/core"
	)

	func main() {
	    cfg, err := config.Load()
	    if err != nil {
	        log.Fatal(err)
	    }

	    engine, err := tokenmiddleware.NewEngine(cfg,
	        tokenmiddleware.WithEngineLogger(slog.Default()),
	    )
	    if err != nil {
	        log.Fatal(err)
	    }
	    defer engine.Close()

	    middleware, err := tokenmiddleware.New(
	        tokenmiddleware.WithCore(engine.Core),
	    )
	    if err != nil {
	        log.Fatal(err)
	    }

	    http.Handle("/api/", middleware.CheckToken(apiHandler))
	    http.ListenAndServe(":8080", nil)
	}

# Accessing the Identity

	func apiHandler(w http.ResponseWriter, r *http.Request) {
	    identity, err := tokenmiddleware.GetIdentity(r.Context())
	    if err != nil {
	        http.Error(w, "Unauthorized", http.StatusUnauthorized)
	        return
	    }
	    fmt.Fprintf(w, "Hello, %s (%s)", identity.Username, identity.Provider)
	}

# Per-Route Policies

Every route may override the engine defaults. Policies are validated when
they are built, so a typo in a provider list fails at startup:

	public, err := tokenmiddleware.New(
	    tokenmiddleware.WithCore(engine.Core),
	    tokenmiddleware.WithPolicy(engine.Core.MustPolicy(
	        core.Required(false),
	    )),
	)

	githubOnly, err := tokenmiddleware.New(
	    tokenmiddleware.WithCore(engine.Core),
	    tokenmiddleware.WithPolicy(engine.Core.MustPolicy(
	        core.AllowedProviders(core.ProviderGitHub),
	        core.CacheTTL(time.Minute),
	    )),
	)

With Required(false) a request without an Authorization header reaches the
handler without an identity. A header that is present but unusable is still
rejected.

# Error Handling

Rejections are answered by DefaultErrorHandler unless WithErrorHandler is
given. Describe exposes the mapping so custom handlers and other transports
can reuse it:

	credential_missing               401 with a bare Bearer challenge
	malformed_header                 400 invalid_request
	malformed_token                  401 invalid_token
	unknown_provider                 401 invalid_token
	provider_restricted              403 insufficient_scope
	invalid_or_insufficient_token    401 invalid_token, 403 when the provider answered 403
	request_timeout                  408
	rate_limited                     429 with Retry-After
	provider_unavailable             503

The response body is JSON:

	{"error":"invalid_token","error_description":"...","error_code":"malformed_token"}

# Header Sources

The credential is read from the Authorization header by default. Cookies and
query parameters carry a bare credential:

	tokenmiddleware.WithHeaderSource(tokenmiddleware.MultiHeaderSource(
	    tokenmiddleware.AuthorizationHeader,
	    tokenmiddleware.CookieHeaderSource("session"),
	))

# Logging, Metrics and Tracing

Logger is compatible with *slog.Logger. Adapters are provided for zap,
zerolog, logrus and logr. PrometheusMetrics and OpenTelemetryTracer plug into
the engine through WithEngineMetrics and WithEngineTracer. Credentials never
appear in logs; a short hash fingerprint is logged instead.
*/
package tokenmiddleware
