package tokenmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flownity-dev/flownity-backend-sub000/config"
	"github.com/flownity-dev/flownity-backend-sub000/core"
	"github.com/flownity-dev/flownity-backend-sub000/providers/github"
	"github.com/flownity-dev/flownity-backend-sub000/providers/google"
)

func testConfig() config.Config {
	return config.Config{
		CacheTTL:           time.Minute,
		RequestTimeout:     time.Second,
		MaxRetries:         1,
		RetryBackoff:       time.Millisecond,
		CacheMaxSize:       10,
		CacheSweepInterval: time.Minute,
		AllowedProviders:   []core.ProviderTag{core.ProviderGitHub, core.ProviderGoogle},
	}
}

func Test_NewEngine(t *testing.T) {
	var githubCalls, googleCalls atomic.Int32

	githubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := githubCalls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer "+githubToken, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":583231,"login":"octocat","email":"octocat@github.com"}`))
	}))
	t.Cleanup(githubServer.Close)

	googleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		googleCalls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	t.Cleanup(googleServer.Close)

	reg := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(reg)

	engine, err := NewEngine(testConfig(),
		WithEngineMetrics(metrics),
		WithEngineLogger(&recordingLogger{}),
		WithEngineHTTPClient(githubServer.Client()),
		WithGitHubOptions(github.WithEndpoint(githubServer.URL)),
		WithGoogleOptions(google.WithEndpoint(googleServer.URL)),
	)
	require.NoError(t, err)

	t.Run("verifies github tokens with a retry", func(t *testing.T) {
		outcome := engine.Core.Verify(context.Background(), "Bearer "+githubToken, core.Policy{})
		require.Equal(t, core.StatusSuccess, outcome.Status, "%v", outcome.Err)
		assert.Equal(t, "octocat", outcome.Identity.Username)
		assert.Equal(t, "583231", outcome.Identity.ID)
		assert.False(t, outcome.Cached)

		assert.Equal(t, int32(2), githubCalls.Load())
		assert.Equal(t, float64(1), testutil.ToFloat64(
			metrics.counters[MetricProviderRetries].With(map[string]string{"status": "502"})))
	})

	t.Run("serves the second verification from cache", func(t *testing.T) {
		outcome := engine.Core.Verify(context.Background(), "Bearer "+githubToken, core.Policy{})
		require.Equal(t, core.StatusSuccess, outcome.Status)
		assert.True(t, outcome.Cached)
		assert.Equal(t, int32(2), githubCalls.Load())
		assert.Equal(t, 1, engine.Cache.Len())
	})

	t.Run("rejects google tokens tokeninfo refuses", func(t *testing.T) {
		outcome := engine.Core.Verify(context.Background(), "Bearer "+googleToken, core.Policy{})
		require.Equal(t, core.StatusRejected, outcome.Status)
		assert.Equal(t, core.KindInvalidOrInsufficientToken, outcome.Kind())
		assert.Equal(t, core.ProviderGoogle, outcome.Err.Provider)
		assert.Equal(t, int32(1), googleCalls.Load())
	})

	t.Run("close drops cached identities", func(t *testing.T) {
		require.NoError(t, engine.Close())
		assert.Equal(t, 0, engine.Cache.Len())
		assert.Error(t, engine.Close())
	})
}

func Test_NewEngine_Errors(t *testing.T) {
	t.Run("unknown allowed provider", func(t *testing.T) {
		cfg := testConfig()
		cfg.AllowedProviders = []core.ProviderTag{"gitlab"}

		_, err := NewEngine(cfg)
		assert.ErrorContains(t, err, `unknown provider "gitlab"`)
	})

	t.Run("invalid cache size", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheMaxSize = 0

		_, err := NewEngine(cfg)
		assert.ErrorContains(t, err, "failed to create cache")
	})

	t.Run("nil options", func(t *testing.T) {
		_, err := NewEngine(testConfig(), WithEngineLogger(nil))
		assert.ErrorIs(t, err, ErrLoggerNil)

		_, err = NewEngine(testConfig(), WithEngineMetrics(nil))
		assert.Error(t, err)

		_, err = NewEngine(testConfig(), WithEngineTracer(nil))
		assert.Error(t, err)

		_, err = NewEngine(testConfig(), WithEngineHTTPClient(nil))
		assert.Error(t, err)
	})

	t.Run("invalid adapter option", func(t *testing.T) {
		_, err := NewEngine(testConfig(), WithGitHubOptions(github.WithEndpoint("")))
		assert.ErrorContains(t, err, "failed to create github adapter")
	})
}
