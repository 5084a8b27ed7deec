package tokenmiddleware

import (
	"context"
	"net/http"

	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// TokenMiddleware verifies the bearer credential of each request and attaches
// the resulting identity to the request context.
type TokenMiddleware struct {
	core                *core.Core
	policy              core.Policy
	errorHandler        ErrorHandler
	headerSource        HeaderSource
	validateOnOptions   bool
	exclusionURLHandler ExclusionURLHandler
	logger              Logger
}

// Logger defines an optional logging interface compatible with log/slog.
// This is the same interface used by core for consistent logging across the stack.
type Logger = core.Logger

// ExclusionURLHandler reports whether a request should skip verification.
type ExclusionURLHandler func(r *http.Request) bool

// New constructs a TokenMiddleware.
//
// Example:
//
//	middleware, err := tokenmiddleware.New(
//	    tokenmiddleware.WithCore(engine.Core),
//	    tokenmiddleware.WithPolicy(engine.Core.MustPolicy(core.Required(false))),
//	)
//	if err != nil {
//	    log.Fatalf("failed to create middleware: %v", err)
//	}
func New(opts ...Option) (*TokenMiddleware, error) {
	m := &TokenMiddleware{
		validateOnOptions: true,
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if m.core == nil {
		return nil, ErrCoreNil
	}
	if m.errorHandler == nil {
		m.errorHandler = DefaultErrorHandler
	}
	if m.headerSource == nil {
		m.headerSource = AuthorizationHeader
	}

	return m, nil
}

// GetIdentity returns the identity attached by the middleware.
//
// Example:
//
//	identity, err := tokenmiddleware.GetIdentity(r.Context())
//	if err != nil {
//	    http.Error(w, "unauthenticated", http.StatusUnauthorized)
//	    return
//	}
//	fmt.Fprintf(w, "Hello, %s!", identity.Username)
func GetIdentity(ctx context.Context) (core.Identity, error) {
	return core.GetIdentity(ctx)
}

// MustGetIdentity returns the attached identity or panics.
// Use only behind a policy that requires credentials.
func MustGetIdentity(ctx context.Context) core.Identity {
	identity, err := core.GetIdentity(ctx)
	if err != nil {
		panic(err)
	}
	return identity
}

// HasIdentity reports whether the request was authenticated.
func HasIdentity(ctx context.Context) bool {
	return core.HasIdentity(ctx)
}

// CheckToken wraps next with credential verification. Rejected requests are
// answered by the error handler and never reach next.
func (m *TokenMiddleware) CheckToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exclusionURLHandler != nil && m.exclusionURLHandler(r) {
			if m.logger != nil {
				m.logger.Debug("skipping token verification for excluded URL",
					"method", r.Method,
					"path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
			return
		}
		if !m.validateOnOptions && r.Method == http.MethodOptions {
			if m.logger != nil {
				m.logger.Debug("skipping token verification for OPTIONS request")
			}
			next.ServeHTTP(w, r)
			return
		}

		outcome := m.core.Verify(r.Context(), m.headerSource(r), m.policy)

		switch outcome.Status {
		case core.StatusSuccess:
			r = r.Clone(core.SetIdentity(r.Context(), *outcome.Identity))
			next.ServeHTTP(w, r)
		case core.StatusNoCredential:
			next.ServeHTTP(w, r)
		default:
			if m.logger != nil {
				m.logger.Debug("rejecting request",
					"method", r.Method,
					"path", r.URL.Path,
					"kind", string(outcome.Kind()))
			}
			m.errorHandler(w, r, outcome.Err)
		}
	})
}
