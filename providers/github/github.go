// Package github verifies GitHub access tokens against the authenticated
// user endpoint of the REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flownity-dev/flownity-backend-sub000/core"
	"github.com/flownity-dev/flownity-backend-sub000/introspect"
	"github.com/flownity-dev/flownity-backend-sub000/providers"
)

const (
	// DefaultEndpoint returns the user a token belongs to.
	DefaultEndpoint = "https://api.github.com/user"

	apiVersion = "2022-11-28"

	// expirationHeader is sent for tokens that have an expiry, such as
	// fine-grained personal access tokens.
	expirationHeader = "GitHub-Authentication-Token-Expiration"
)

var expirationLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
}

type user struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Adapter verifies GitHub tokens.
type Adapter struct {
	client   providers.Doer
	endpoint string
	now      func() time.Time
}

var _ core.Adapter = (*Adapter)(nil)

// Option configures the Adapter.
type Option func(*Adapter) error

// New creates a GitHub adapter that calls the API through client.
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

// WithEndpoint overrides the user endpoint, for GitHub Enterprise Server or
// tests.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) error {
		if endpoint == "" {
			return errors.New("endpoint cannot be empty")
		}
		a.endpoint = endpoint
		return nil
	}
}

// WithClock overrides the time source used for expiry and rate-limit checks.
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
func (a *Adapter) Provider() core.ProviderTag { return core.ProviderGitHub }

// Verify implements core.Adapter.
func (a *Adapter) Verify(ctx context.Context, credential string, cfg introspect.Config) (core.Verified, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	header.Set("Accept", "application/vnd.github+json")
	header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := a.client.Do(ctx, introspect.Request{
		URL:       a.endpoint,
		Header:    header,
		Retryable: providers.Retryable(),
	}, cfg)
	if err != nil {
		return core.Verified{}, providers.ClassifyError(core.ProviderGitHub, err)
	}

	now := a.now()
	if resp.StatusCode != http.StatusOK {
		return core.Verified{}, a.classify(resp, now)
	}

	var u user
	if err := json.Unmarshal(resp.Body, &u); err != nil {
		return core.Verified{}, providers.Reject(core.ProviderGitHub, core.KindProviderUnavailable,
			resp.StatusCode, "malformed user response", err)
	}
	if u.ID == 0 {
		return core.Verified{}, providers.Reject(core.ProviderGitHub, core.KindProviderUnavailable,
			resp.StatusCode, "user response has no id", nil)
	}

	expiresAt, err := parseExpiration(resp.Header.Get(expirationHeader))
	if err != nil {
		return core.Verified{}, providers.Reject(core.ProviderGitHub, core.KindProviderUnavailable,
			resp.StatusCode, "malformed token expiration header", err)
	}
	if !expiresAt.IsZero() && !now.Before(expiresAt) {
		return core.Verified{}, providers.Reject(core.ProviderGitHub, core.KindInvalidOrInsufficientToken,
			resp.StatusCode, "token has expired", nil)
	}

	id := strconv.FormatInt(u.ID, 10)
	return core.Verified{
		Identity: core.Identity{
			Provider:  core.ProviderGitHub,
			ID:        id,
			Username:  providers.Handle(u.Login, providers.EmailLocalPart(u.Email), id),
			Email:     u.Email,
			Name:      u.Name,
			AvatarURL: u.AvatarURL,
		},
		ExpiresAt: expiresAt,
	}, nil
}

func (a *Adapter) classify(resp *introspect.Response, now time.Time) *core.VerificationError {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Revoked tokens sometimes answer 404 instead of 401.
		return providers.Reject(core.ProviderGitHub, core.KindInvalidOrInsufficientToken,
			resp.StatusCode, "token is invalid or revoked", nil)

	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		// Primary rate limits are reported as 403.
		verr := providers.Reject(core.ProviderGitHub, core.KindRateLimited,
			resp.StatusCode, "provider rate limit exceeded", nil)
		verr.RetryAfter = retryAfter(resp.Header, now)
		return verr

	case resp.StatusCode == http.StatusTooManyRequests:
		verr := providers.ClassifyStatus(core.ProviderGitHub, resp, now)
		verr.RetryAfter = retryAfter(resp.Header, now)
		return verr

	default:
		return providers.ClassifyStatus(core.ProviderGitHub, resp, now)
	}
}

// retryAfter prefers Retry-After and falls back to X-RateLimit-Reset.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if d := providers.RetryAfter(h, now); d > 0 {
		return d
	}
	return providers.UnixReset(h.Get("X-RateLimit-Reset"), now)
}

func parseExpiration(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range expirationLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
