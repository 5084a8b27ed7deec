package tokenmiddleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flownity-dev/flownity-backend-sub000/cache"
	"github.com/flownity-dev/flownity-backend-sub000/core"
	"github.com/flownity-dev/flownity-backend-sub000/introspect"
)

var (
	githubToken = "ghp_" + strings.Repeat("a1B2", 10)
	googleToken = "ya29.a0AfH6SMBx-example_token"

	octocat = core.Identity{
		Provider: core.ProviderGitHub,
		ID:       "583231",
		Username: "octocat",
		Email:    "octocat@github.com",
	}
)

// stubAdapter is a scripted core.Adapter that counts its calls.
type stubAdapter struct {
	tag    core.ProviderTag
	calls  atomic.Int32
	verify func(ctx context.Context, credential string) (core.Verified, error)
}

func (s *stubAdapter) Provider() core.ProviderTag { return s.tag }

func (s *stubAdapter) Verify(ctx context.Context, credential string, _ introspect.Config) (core.Verified, error) {
	s.calls.Add(1)
	return s.verify(ctx, credential)
}

func acceptAs(identity core.Identity) func(context.Context, string) (core.Verified, error) {
	return func(context.Context, string) (core.Verified, error) {
		return core.Verified{Identity: identity}, nil
	}
}

func rejectWith(kind core.ErrorKind, status int, retryAfter time.Duration) func(context.Context, string) (core.Verified, error) {
	return func(context.Context, string) (core.Verified, error) {
		verr := core.NewVerificationError(kind, "provider refused the token", nil)
		verr.ProviderStatus = status
		verr.RetryAfter = retryAfter
		return core.Verified{}, verr
	}
}

// newTestCore builds a Core backed by the real cache. GitHub tokens resolve
// to octocat and Google tokens are rejected unless overridden.
func newTestCore(t *testing.T, github, google *stubAdapter, opts ...core.Option) *core.Core {
	t.Helper()

	if github == nil {
		github = &stubAdapter{tag: core.ProviderGitHub, verify: acceptAs(octocat)}
	}
	if google == nil {
		google = &stubAdapter{tag: core.ProviderGoogle, verify: rejectWith(core.KindInvalidOrInsufficientToken, http.StatusUnauthorized, 0)}
	}

	c, err := cache.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	engine, err := core.New(append([]core.Option{
		core.WithCache(c),
		core.WithAdapters(github, google),
	}, opts...)...)
	require.NoError(t, err)
	return engine
}

var identityHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	identity, err := GetIdentity(r.Context())
	if err != nil {
		_, _ = w.Write([]byte(`{"username":"anonymous"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"username": identity.Username})
})

func Test_CheckToken(t *testing.T) {
	testCases := []struct {
		name           string
		github         *stubAdapter
		policy         []core.PolicyOption
		options        []Option
		method         string
		path           string
		header         string
		wantStatusCode int
		wantBody       string
		wantHeaders    map[string]string
	}{
		{
			name:           "it authenticates a valid github token",
			header:         "Bearer " + githubToken,
			wantStatusCode: http.StatusOK,
			wantBody:       `{"username":"octocat"}`,
		},
		{
			name:           "it verifies OPTIONS requests by default",
			method:         http.MethodOptions,
			header:         "Bearer " + githubToken,
			wantStatusCode: http.StatusOK,
			wantBody:       `{"username":"octocat"}`,
		},
		{
			name:           "it rejects a missing header when credentials are required",
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       `{"error":"invalid_token","error_description":"authorization header is missing","error_code":"credential_missing"}`,
			wantHeaders:    map[string]string{"WWW-Authenticate": "Bearer"},
		},
		{
			name:           "it lets anonymous requests through when credentials are optional",
			policy:         []core.PolicyOption{core.Required(false)},
			wantStatusCode: http.StatusOK,
			wantBody:       `{"username":"anonymous"}`,
		},
		{
			name:           "it rejects a malformed header even when credentials are optional",
			policy:         []core.PolicyOption{core.Required(false)},
			header:         "Token " + githubToken,
			wantStatusCode: http.StatusBadRequest,
			wantBody:       `{"error":"invalid_request","error_description":"authorization header format must be Bearer {token}","error_code":"malformed_header"}`,
		},
		{
			name:           "it rejects a token of unknown shape",
			header:         "Bearer abcdefghijklmnop",
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       `{"error":"invalid_token","error_description":"credential does not match any known provider","error_code":"unknown_provider"}`,
		},
		{
			name:           "it rejects a token the provider refuses",
			header:         "Bearer " + googleToken,
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       `{"error":"invalid_token","error_description":"provider refused the token","error_code":"invalid_or_insufficient_token"}`,
		},
		{
			name:           "it rejects a provider the route does not allow",
			policy:         []core.PolicyOption{core.AllowedProviders(core.ProviderGitHub)},
			header:         "Bearer " + googleToken,
			wantStatusCode: http.StatusForbidden,
			wantBody:       `{"error":"insufficient_scope","error_description":"provider is not allowed for this endpoint","error_code":"provider_restricted"}`,
		},
		{
			name:           "it surfaces provider rate limits with Retry-After",
			github:         &stubAdapter{tag: core.ProviderGitHub, verify: rejectWith(core.KindRateLimited, http.StatusTooManyRequests, 3*time.Second)},
			header:         "Bearer " + githubToken,
			wantStatusCode: http.StatusTooManyRequests,
			wantBody:       `{"error":"rate_limited","error_description":"provider refused the token","error_code":"rate_limited"}`,
			wantHeaders:    map[string]string{"Retry-After": "3"},
		},
		{
			name:           "it skips OPTIONS requests when configured to",
			options:        []Option{WithValidateOnOptions(false)},
			method:         http.MethodOptions,
			wantStatusCode: http.StatusOK,
			wantBody:       `{"username":"anonymous"}`,
		},
		{
			name:           "it skips excluded paths",
			options:        []Option{WithExclusionUrls([]string{"/health"})},
			path:           "/health",
			wantStatusCode: http.StatusOK,
			wantBody:       `{"username":"anonymous"}`,
		},
		{
			name:           "it still verifies paths that are not excluded",
			options:        []Option{WithExclusionUrls([]string{"/health"})},
			path:           "/private",
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       `{"error":"invalid_token","error_description":"authorization header is missing","error_code":"credential_missing"}`,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			engine := newTestCore(t, testCase.github, nil)

			opts := append([]Option{
				WithCore(engine),
				WithPolicy(engine.MustPolicy(testCase.policy...)),
			}, testCase.options...)
			middleware, err := New(opts...)
			require.NoError(t, err)

			server := httptest.NewServer(middleware.CheckToken(identityHandler))
			t.Cleanup(server.Close)

			method := testCase.method
			if method == "" {
				method = http.MethodGet
			}
			request, err := http.NewRequest(method, server.URL+testCase.path, nil)
			require.NoError(t, err)
			if testCase.header != "" {
				request.Header.Set("Authorization", testCase.header)
			}

			response, err := server.Client().Do(request)
			require.NoError(t, err)
			defer response.Body.Close()

			body, err := io.ReadAll(response.Body)
			require.NoError(t, err)

			assert.Equal(t, testCase.wantStatusCode, response.StatusCode)
			assert.Equal(t, "application/json", response.Header.Get("Content-Type"))
			if diff := cmp.Diff(testCase.wantBody, strings.TrimSpace(string(body))); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
			for k, v := range testCase.wantHeaders {
				assert.Equal(t, v, response.Header.Get(k), k)
			}
		})
	}
}

func Test_CheckToken_ServesRepeatRequestsFromCache(t *testing.T) {
	github := &stubAdapter{tag: core.ProviderGitHub, verify: acceptAs(octocat)}
	engine := newTestCore(t, github, nil)

	middleware, err := New(WithCore(engine))
	require.NoError(t, err)
	handler := middleware.CheckToken(identityHandler)

	for i := 0; i < 3; i++ {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer "+githubToken)
		recorder := httptest.NewRecorder()

		handler.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusOK, recorder.Code)
	}

	assert.Equal(t, int32(1), github.calls.Load())
}

func Test_CheckToken_CustomErrorHandler(t *testing.T) {
	engine := newTestCore(t, nil, nil)

	var gotErr error
	middleware, err := New(
		WithCore(engine),
		WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			gotErr = err
			w.WriteHeader(http.StatusTeapot)
		}),
	)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	middleware.CheckToken(identityHandler).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, recorder.Code)
	assert.ErrorIs(t, gotErr, core.ErrCredentialMissing)
}

func Test_CheckToken_HeaderSource(t *testing.T) {
	engine := newTestCore(t, nil, nil)

	middleware, err := New(
		WithCore(engine),
		WithHeaderSource(CookieHeaderSource("session")),
	)
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(&http.Cookie{Name: "session", Value: githubToken})
	recorder := httptest.NewRecorder()

	middleware.CheckToken(identityHandler).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"username":"octocat"}`, recorder.Body.String())
}

func Test_IdentityHelpers(t *testing.T) {
	t.Run("missing identity", func(t *testing.T) {
		ctx := context.Background()

		_, err := GetIdentity(ctx)
		assert.ErrorIs(t, err, core.ErrIdentityNotFound)
		assert.False(t, HasIdentity(ctx))
		assert.Panics(t, func() { MustGetIdentity(ctx) })
	})

	t.Run("attached identity", func(t *testing.T) {
		ctx := core.SetIdentity(context.Background(), octocat)

		got, err := GetIdentity(ctx)
		require.NoError(t, err)
		assert.Equal(t, octocat, got)
		assert.True(t, HasIdentity(ctx))
		assert.Equal(t, octocat, MustGetIdentity(ctx))
	})
}
