// Package tokenecho adapts the verification engine to Echo.
package tokenecho

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	tokenmiddleware "github.com/flownity-dev/flownity-backend-sub000"
	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// DefaultIdentityKey is the echo context key the identity is stored under.
var DefaultIdentityKey = "identity"

// echoMiddlewareConfig holds all configuration for the middleware
type echoMiddlewareConfig struct {
	errorHandler      func(echo.Context, error) error
	contextKey        string
	headerSource      tokenmiddleware.HeaderSource
	policy            core.Policy
	validateOnOptions bool
}

// NewEchoMiddleware builds an Echo middleware around engine. The verified
// identity is stored both in the echo context and in the request context, so
// tokenmiddleware.GetIdentity works in handlers too.
func NewEchoMiddleware(engine *core.Core, opts ...Option) (echo.MiddlewareFunc, error) {
	if engine == nil {
		return nil, tokenmiddleware.ErrCoreNil
	}

	config := &echoMiddlewareConfig{
		errorHandler:      defaultEchoErrorHandler,
		contextKey:        DefaultIdentityKey,
		headerSource:      tokenmiddleware.AuthorizationHeader,
		validateOnOptions: true,
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.errorHandler == nil {
		return nil, tokenmiddleware.ErrErrorHandlerNil
	}
	if config.headerSource == nil {
		return nil, tokenmiddleware.ErrHeaderSourceNil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if !config.validateOnOptions && r.Method == http.MethodOptions {
				return next(c)
			}

			outcome := engine.Verify(r.Context(), config.headerSource(r), config.policy)

			switch outcome.Status {
			case core.StatusSuccess:
				c.SetRequest(r.WithContext(core.SetIdentity(r.Context(), *outcome.Identity)))
				c.Set(config.contextKey, *outcome.Identity)
				return next(c)
			case core.StatusNoCredential:
				return next(c)
			default:
				return config.errorHandler(c, outcome.Err)
			}
		}
	}, nil
}

func defaultEchoErrorHandler(c echo.Context, err error) error {
	rej := tokenmiddleware.Describe(err)
	for k, vs := range rej.Headers() {
		c.Response().Header()[k] = vs
	}
	return c.JSON(rej.Status, rej.Body)
}

// GetIdentity returns the identity stored under contextKey.
func GetIdentity(c echo.Context, contextKey string) (core.Identity, error) {
	v := c.Get(contextKey)
	if v == nil {
		return core.Identity{}, core.ErrIdentityNotFound
	}
	identity, ok := v.(core.Identity)
	if !ok {
		return core.Identity{}, errors.New("identity has unexpected type in echo context")
	}
	return identity, nil
}
