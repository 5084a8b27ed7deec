package tokenecho

import (
	"github.com/labstack/echo/v4"

	tokenmiddleware "github.com/flownity-dev/flownity-backend-sub000"
	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// Option is a function that configures the middleware
type Option func(*echoMiddlewareConfig)

// WithErrorHandler sets a custom error handler. Its return value is returned
// from the middleware, so it may defer to Echo's HTTPErrorHandler.
func WithErrorHandler(handler func(echo.Context, error) error) Option {
	return func(config *echoMiddlewareConfig) {
		config.errorHandler = handler
	}
}

// WithContextKey sets a custom context key to store the identity
func WithContextKey(key string) Option {
	return func(config *echoMiddlewareConfig) {
		config.contextKey = key
	}
}

// WithHeaderSource sets where the Authorization value is read from
func WithHeaderSource(source tokenmiddleware.HeaderSource) Option {
	return func(config *echoMiddlewareConfig) {
		config.headerSource = source
	}
}

// WithPolicy sets the route policy
func WithPolicy(p core.Policy) Option {
	return func(config *echoMiddlewareConfig) {
		config.policy = p
	}
}

// WithValidateOnOptions sets whether OPTIONS requests are verified
func WithValidateOnOptions(value bool) Option {
	return func(config *echoMiddlewareConfig) {
		config.validateOnOptions = value
	}
}
