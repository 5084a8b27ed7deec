package github

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flownity-dev/flownity-backend-sub000/core"
	"github.com/flownity-dev/flownity-backend-sub000/introspect"
)

var token = "ghp_" + strings.Repeat("Z9", 20)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() introspect.Config {
	return introspect.Config{Timeout: time.Second, MaxRetries: 2, BaseBackoff: time.Millisecond}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := introspect.New()
	require.NoError(t, err)
	a, err := New(client, WithEndpoint(srv.URL), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return a, &hits
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorContains(t, err, "introspection client is required")

	client, err := introspect.New()
	require.NoError(t, err)

	_, err = New(client, WithEndpoint(""))
	assert.ErrorContains(t, err, "endpoint cannot be empty")

	_, err = New(client, WithClock(nil))
	assert.ErrorContains(t, err, "clock cannot be nil")

	a, err := New(client)
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, a.endpoint)
	assert.Equal(t, core.ProviderGitHub, a.Provider())
}

func TestAdapter_Verify_Success(t *testing.T) {
	headers := make(chan http.Header, 1)
	a, hits := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_, _ = io.WriteString(w, `{"id": 123, "login": "alice"}`)
	})

	verified, err := a.Verify(context.Background(), token, testConfig())

	require.NoError(t, err)
	assert.Equal(t, core.Identity{Provider: core.ProviderGitHub, ID: "123", Username: "alice"}, verified.Identity)
	assert.True(t, verified.ExpiresAt.IsZero())
	assert.Equal(t, int32(1), hits.Load())

	got := <-headers
	assert.Equal(t, "Bearer "+token, got.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", got.Get("Accept"))
	assert.Equal(t, apiVersion, got.Get("X-GitHub-Api-Version"))
}

func TestAdapter_Verify_OptionalFields(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"id": 42,
			"login": "",
			"name": "Octo Cat",
			"email": "octo@example.com",
			"avatar_url": "https://avatars.githubusercontent.com/u/42"
		}`)
	})

	verified, err := a.Verify(context.Background(), token, testConfig())

	require.NoError(t, err)
	assert.Equal(t, core.Identity{
		Provider:  core.ProviderGitHub,
		ID:        "42",
		Username:  "octo",
		Email:     "octo@example.com",
		Name:      "Octo Cat",
		AvatarURL: "https://avatars.githubusercontent.com/u/42",
	}, verified.Identity)
}

func TestAdapter_Verify_Expiration(t *testing.T) {
	t.Run("future expiry is reported", func(t *testing.T) {
		a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(expirationHeader, "2024-06-01 13:00:00 +0000")
			_, _ = io.WriteString(w, `{"id": 1, "login": "alice"}`)
		})

		verified, err := a.Verify(context.Background(), token, testConfig())

		require.NoError(t, err)
		assert.True(t, verified.ExpiresAt.Equal(now.Add(time.Hour)))
	})

	t.Run("past expiry is rejected despite a 200", func(t *testing.T) {
		a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(expirationHeader, "2024-06-01 11:00:00 UTC")
			_, _ = io.WriteString(w, `{"id": 1, "login": "alice"}`)
		})

		_, err := a.Verify(context.Background(), token, testConfig())

		assert.ErrorIs(t, err, core.ErrInvalidOrInsufficientToken)
	})
}

func TestAdapter_Verify_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		body       string
		wantKind   core.ErrorKind
		wantHits   int32
		wantWait   time.Duration
		wantStatus int
	}{
		{name: "unauthorized", status: 401, wantKind: core.KindInvalidOrInsufficientToken, wantHits: 1, wantStatus: 401},
		{name: "forbidden", status: 403, wantKind: core.KindInvalidOrInsufficientToken, wantHits: 1, wantStatus: 403},
		{name: "not found", status: 404, wantKind: core.KindInvalidOrInsufficientToken, wantHits: 1, wantStatus: 404},
		{
			name:   "primary rate limit",
			status: 403,
			header: map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(now.Add(time.Minute).Unix(), 10),
			},
			wantKind:   core.KindRateLimited,
			wantHits:   1,
			wantWait:   time.Minute,
			wantStatus: 403,
		},
		{
			name:       "secondary rate limit is retried",
			status:     429,
			header:     map[string]string{"Retry-After": "60"},
			wantKind:   core.KindRateLimited,
			wantHits:   3,
			wantWait:   time.Minute,
			wantStatus: 429,
		},
		{name: "server error", status: 500, wantKind: core.KindProviderUnavailable, wantHits: 1, wantStatus: 500},
		{name: "bad gateway is retried", status: 502, wantKind: core.KindProviderUnavailable, wantHits: 3, wantStatus: 502},
		{name: "malformed body", status: 200, body: `{"id":`, wantKind: core.KindProviderUnavailable, wantHits: 1, wantStatus: 200},
		{name: "missing id", status: 200, body: `{"login":"ghost"}`, wantKind: core.KindProviderUnavailable, wantHits: 1, wantStatus: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, hits := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := a.Verify(context.Background(), token, testConfig())

			var verr *core.VerificationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantKind, verr.Kind)
			assert.Equal(t, core.ProviderGitHub, verr.Provider)
			assert.Equal(t, tt.wantStatus, verr.ProviderStatus)
			assert.Equal(t, tt.wantWait, verr.RetryAfter)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestAdapter_Verify_Timeout(t *testing.T) {
	a, hits := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := a.Verify(context.Background(), token, introspect.Config{Timeout: 20 * time.Millisecond, MaxRetries: 2})

	assert.ErrorIs(t, err, core.ErrRequestTimeout)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAdapter_Verify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client, err := introspect.New()
	require.NoError(t, err)
	a, err := New(client, WithEndpoint(endpoint))
	require.NoError(t, err)

	_, err = a.Verify(context.Background(), token, introspect.Config{Timeout: time.Second, BaseBackoff: time.Millisecond, MaxRetries: 1})

	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
}

func TestParseExpiration(t *testing.T) {
	got, err := parseExpiration("2024-07-01 00:00:00 +0200")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 30, 22, 0, 0, 0, time.UTC)))

	got, err = parseExpiration("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseExpiration("next tuesday")
	assert.Error(t, err)
}
