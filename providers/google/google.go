// Package google verifies Google OAuth 2.0 access tokens and OpenID Connect
// ID tokens through the tokeninfo endpoint.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/flownity-dev/flownity-backend-sub000/core"
	"github.com/flownity-dev/flownity-backend-sub000/introspect"
	"github.com/flownity-dev/flownity-backend-sub000/providers"
)

// DefaultEndpoint is Google's token introspection endpoint.
const DefaultEndpoint = "https://oauth2.googleapis.com/tokeninfo"

// Issuers are the iss values Google puts in ID tokens.
var Issuers = []string{"accounts.google.com", "https://accounts.google.com"}

// tokenInfo is the tokeninfo response. Numeric fields arrive as strings.
type tokenInfo struct {
	Subject       string `json:"sub"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Audience      string `json:"aud"`
	AuthorizedBy  string `json:"azp"`
	Expiry        string `json:"exp"`
	ExpiresIn     string `json:"expires_in"`
	Issuer        string `json:"iss"`
}

// Adapter verifies Google credentials.
type Adapter struct {
	client    providers.Doer
	endpoint  string
	audiences []string
	now       func() time.Time
}

var _ core.Adapter = (*Adapter)(nil)

// Option configures the Adapter.
type Option func(*Adapter) error

// New creates a Google adapter that calls tokeninfo through client.
func New(client providers.Doer, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("introspection client is required")
	}

	a := &Adapter{
		client:   client,
		endpoint: DefaultEndpoint,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return a, nil
}

// WithEndpoint overrides the tokeninfo endpoint.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) error {
		if endpoint == "" {
			return errors.New("endpoint cannot be empty")
		}
		a.endpoint = endpoint
		return nil
	}
}

// WithAudiences restricts accepted tokens to the given OAuth client IDs.
// Without it any audience is accepted.
func WithAudiences(audiences ...string) Option {
	return func(a *Adapter) error {
		if len(audiences) == 0 {
			return errors.New("at least one audience is required")
		}
		a.audiences = slices.Clone(audiences)
		return nil
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		a.now = now
		return nil
	}
}

// Provider implements core.Adapter.
func (a *Adapter) Provider() core.ProviderTag { return core.ProviderGoogle }

// Verify implements core.Adapter.
//
// ID tokens are inspected locally first: a token from another issuer or one
// that has already expired is rejected without calling Google.
func (a *Adapter) Verify(ctx context.Context, credential string, cfg introspect.Config) (core.Verified, error) {
	param := "access_token"
	if isJWT(credential) {
		if err := a.precheck(credential); err != nil {
			return core.Verified{}, err
		}
		param = "id_token"
	}

	resp, err := a.client.Do(ctx, introspect.Request{
		URL:       a.endpoint + "?" + url.Values{param: {credential}}.Encode(),
		Header:    http.Header{"Accept": {"application/json"}},
		Retryable: providers.Retryable(),
	}, cfg)
	if err != nil {
		return core.Verified{}, providers.ClassifyError(core.ProviderGoogle, err)
	}

	now := a.now()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusBadRequest {
			// tokeninfo answers 400 invalid_token for unknown or expired tokens.
			return core.Verified{}, providers.Reject(core.ProviderGoogle, core.KindInvalidOrInsufficientToken,
				resp.StatusCode, "token is invalid or expired", nil)
		}
		return core.Verified{}, providers.ClassifyStatus(core.ProviderGoogle, resp, now)
	}

	var info tokenInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return core.Verified{}, providers.Reject(core.ProviderGoogle, core.KindProviderUnavailable,
			resp.StatusCode, "malformed tokeninfo response", err)
	}

	return a.identity(info, resp.StatusCode, now)
}

func (a *Adapter) identity(info tokenInfo, status int, now time.Time) (core.Verified, error) {
	expiresAt, err := info.expiresAt(now)
	if err != nil {
		return core.Verified{}, providers.Reject(core.ProviderGoogle, core.KindProviderUnavailable,
			status, "malformed expiry in tokeninfo response", err)
	}
	if !expiresAt.IsZero() && !now.Before(expiresAt) {
		return core.Verified{}, providers.Reject(core.ProviderGoogle, core.KindInvalidOrInsufficientToken,
			status, "token has expired", nil)
	}

	if len(a.audiences) > 0 && !slices.Contains(a.audiences, info.Audience) && !slices.Contains(a.audiences, info.AuthorizedBy) {
		return core.Verified{}, providers.Reject(core.ProviderGoogle, core.KindInvalidOrInsufficientToken,
			http.StatusForbidden, "token was issued to another client", nil)
	}

	subject := providers.Handle(info.Subject, info.UserID)
	if subject == "" {
		// Access tokens granted without the openid scope carry no user.
		return core.Verified{}, providers.Reject(core.ProviderGoogle, core.KindInvalidOrInsufficientToken,
			http.StatusForbidden, "token does not identify a user", nil)
	}

	return core.Verified{
		Identity: core.Identity{
			Provider:  core.ProviderGoogle,
			ID:        subject,
			Username:  providers.Handle(providers.EmailLocalPart(info.Email), subject),
			Email:     info.Email,
			Name:      info.Name,
			AvatarURL: info.Picture,
		},
		ExpiresAt: expiresAt,
	}, nil
}

// precheck rejects ID tokens that Google would refuse anyway. The signature
// is not checked here; tokeninfo does that.
func (a *Adapter) precheck(credential string) error {
	tok, err := jwt.ParseString(credential, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return providers.Reject(core.ProviderGoogle, core.KindInvalidOrInsufficientToken, 0,
			"malformed ID token", err)
	}
	if !slices.Contains(Issuers, tok.Issuer()) {
		return providers.Reject(core.ProviderGoogle, core.KindInvalidOrInsufficientToken, 0,
			"ID token was not issued by Google", nil)
	}
	if exp := tok.Expiration(); !exp.IsZero() && !a.now().Before(exp) {
		return providers.Reject(core.ProviderGoogle, core.KindInvalidOrInsufficientToken, 0,
			"ID token has expired", nil)
	}
	return nil
}

// expiresAt prefers the absolute exp and falls back to expires_in.
func (t tokenInfo) expiresAt(now time.Time) (time.Time, error) {
	if t.Expiry != "" {
		secs, err := strconv.ParseInt(t.Expiry, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("exp: %w", err)
		}
		return time.Unix(secs, 0), nil
	}
	if t.ExpiresIn != "" {
		secs, err := strconv.ParseInt(t.ExpiresIn, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("expires_in: %w", err)
		}
		return now.Add(time.Duration(secs) * time.Second), nil
	}
	return time.Time{}, nil
}

func isJWT(credential string) bool {
	return strings.HasPrefix(credential, "eyJ") && strings.Count(credential, ".") == 2
}
