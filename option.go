package tokenmiddleware

import (
	"errors"
	"net/http"

	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// Option configures the TokenMiddleware.
// Returns error for validation failures.
type Option func(*TokenMiddleware) error

// WithCore sets the verification engine (REQUIRED).
func WithCore(c *core.Core) Option {
	return func(m *TokenMiddleware) error {
		if c == nil {
			return ErrCoreNil
		}
		m.core = c
		return nil
	}
}

// WithPolicy sets the per-route policy built with core.Core.NewPolicy.
//
// Default: the engine's default policy
func WithPolicy(p core.Policy) Option {
	return func(m *TokenMiddleware) error {
		m.policy = p
		return nil
	}
}

// WithValidateOnOptions sets whether OPTIONS requests are verified.
//
// Default: true (OPTIONS requests are verified)
func WithValidateOnOptions(value bool) Option {
	return func(m *TokenMiddleware) error {
		m.validateOnOptions = value
		return nil
	}
}

// WithErrorHandler sets the handler called for rejected requests.
//
// Default: DefaultErrorHandler
func WithErrorHandler(h ErrorHandler) Option {
	return func(m *TokenMiddleware) error {
		if h == nil {
			return ErrErrorHandlerNil
		}
		m.errorHandler = h
		return nil
	}
}

// WithHeaderSource sets where the Authorization value is read from.
//
// Default: AuthorizationHeader
func WithHeaderSource(s HeaderSource) Option {
	return func(m *TokenMiddleware) error {
		if s == nil {
			return ErrHeaderSourceNil
		}
		m.headerSource = s
		return nil
	}
}

// WithExclusionUrls configures URLs that skip verification.
// Entries can be full URLs or just paths.
func WithExclusionUrls(exclusions []string) Option {
	return func(m *TokenMiddleware) error {
		if len(exclusions) == 0 {
			return ErrExclusionUrlsEmpty
		}
		m.exclusionURLHandler = func(r *http.Request) bool {
			requestFullURL := r.URL.String()
			requestPath := r.URL.Path

			for _, exclusion := range exclusions {
				if requestFullURL == exclusion || requestPath == exclusion {
					return true
				}
			}
			return false
		}
		return nil
	}
}

// WithLogger sets an optional logger for the middleware.
func WithLogger(logger Logger) Option {
	return func(m *TokenMiddleware) error {
		if logger == nil {
			return ErrLoggerNil
		}
		m.logger = logger
		return nil
	}
}

// Sentinel errors for configuration validation
var (
	ErrCoreNil            = errors.New("core cannot be nil (use WithCore)")
	ErrErrorHandlerNil    = errors.New("errorHandler cannot be nil")
	ErrHeaderSourceNil    = errors.New("headerSource cannot be nil")
	ErrExclusionUrlsEmpty = errors.New("exclusion URLs list cannot be empty")
	ErrLoggerNil          = errors.New("logger cannot be nil")
)
