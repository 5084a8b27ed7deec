package tokenmiddleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// GinIdentityKey is the gin context key the verified identity is stored under,
// in addition to the request context.
const GinIdentityKey = "identity"

// GinErrorHandler answers a rejected request and must abort the chain.
type GinErrorHandler func(c *gin.Context, err error)

// GinTokenMiddleware is the Gin flavour of TokenMiddleware.
type GinTokenMiddleware struct {
	core              *core.Core
	policy            core.Policy
	errorHandler      GinErrorHandler
	headerSource      HeaderSource
	validateOnOptions bool
}

// GinOption configures the GinTokenMiddleware.
type GinOption func(*GinTokenMiddleware) error

// NewGin constructs a GinTokenMiddleware around c.
func NewGin(c *core.Core, opts ...GinOption) (*GinTokenMiddleware, error) {
	if c == nil {
		return nil, ErrCoreNil
	}

	m := &GinTokenMiddleware{
		core:              c,
		errorHandler:      DefaultGinErrorHandler,
		headerSource:      AuthorizationHeader,
		validateOnOptions: true,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// WithGinPolicy sets the route policy.
func WithGinPolicy(p core.Policy) GinOption {
	return func(m *GinTokenMiddleware) error {
		m.policy = p
		return nil
	}
}

// WithGinErrorHandler sets the rejection handler.
//
// Default: DefaultGinErrorHandler
func WithGinErrorHandler(h GinErrorHandler) GinOption {
	return func(m *GinTokenMiddleware) error {
		if h == nil {
			return ErrErrorHandlerNil
		}
		m.errorHandler = h
		return nil
	}
}

// WithGinHeaderSource sets where the Authorization value is read from.
func WithGinHeaderSource(s HeaderSource) GinOption {
	return func(m *GinTokenMiddleware) error {
		if s == nil {
			return ErrHeaderSourceNil
		}
		m.headerSource = s
		return nil
	}
}

// WithGinValidateOnOptions sets whether OPTIONS requests are verified.
func WithGinValidateOnOptions(value bool) GinOption {
	return func(m *GinTokenMiddleware) error {
		m.validateOnOptions = value
		return nil
	}
}

// CheckTokenGin returns the Gin handler performing verification.
func (m *GinTokenMiddleware) CheckTokenGin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.validateOnOptions && c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		outcome := m.core.Verify(c.Request.Context(), m.headerSource(c.Request), m.policy)

		switch outcome.Status {
		case core.StatusSuccess:
			c.Request = c.Request.Clone(core.SetIdentity(c.Request.Context(), *outcome.Identity))
			c.Set(GinIdentityKey, *outcome.Identity)
			c.Next()
		case core.StatusNoCredential:
			c.Next()
		default:
			m.errorHandler(c, outcome.Err)
		}
	}
}

// DefaultGinErrorHandler writes the Describe mapping and aborts.
func DefaultGinErrorHandler(c *gin.Context, err error) {
	rej := Describe(err)
	for k, vs := range rej.Headers() {
		c.Writer.Header()[k] = vs
	}
	c.AbortWithStatusJSON(rej.Status, rej.Body)
}

// GinIdentity returns the identity stored by CheckTokenGin.
func GinIdentity(c *gin.Context) (core.Identity, error) {
	v, ok := c.Get(GinIdentityKey)
	if !ok {
		return core.Identity{}, core.ErrIdentityNotFound
	}
	identity, ok := v.(core.Identity)
	if !ok {
		return core.Identity{}, errors.New("identity has unexpected type in gin context")
	}
	return identity, nil
}
