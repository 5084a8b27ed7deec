package tokenmiddleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, pair := range m.GetLabel() {
		out[pair.GetName()] = pair.GetValue()
	}
	return out
}

func Test_NoopMetrics(t *testing.T) {
	m := &NoopMetrics{}
	assert.NotPanics(t, func() {
		m.IncCounter("requests_total", map[string]string{"status": "ok"})
		m.ObserveHistogram("latency_seconds", 0.5, nil)
		m.SetGauge("entries", 3, nil)
	})
}

func Test_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.IncCounter("auth_test_verifications_total", map[string]string{"provider": "github", "status": "success"})
	m.IncCounter("auth_test_verifications_total", map[string]string{"status": "success", "provider": "github"})
	m.IncCounter("auth_test_verifications_total", map[string]string{"provider": "google", "status": "rejected"})
	m.ObserveHistogram("auth_test_duration_seconds", 0.25, map[string]string{"provider": "github"})
	m.ObserveHistogram("auth_test_duration_seconds", 0.75, map[string]string{"provider": "github"})
	m.SetGauge("auth_test_cache_entries", 7, map[string]string{})
	m.SetGauge("auth_test_cache_entries", 4, map[string]string{})

	t.Run("counter", func(t *testing.T) {
		family := findFamily(t, reg, "auth_test_verifications_total")
		assert.Equal(t, dto.MetricType_COUNTER, family.GetType())
		require.Len(t, family.GetMetric(), 2)

		got := make(map[string]float64)
		for _, metric := range family.GetMetric() {
			got[labels(metric)["provider"]] = metric.GetCounter().GetValue()
		}
		assert.Equal(t, map[string]float64{"github": 2, "google": 1}, got)
	})

	t.Run("histogram", func(t *testing.T) {
		family := findFamily(t, reg, "auth_test_duration_seconds")
		require.Len(t, family.GetMetric(), 1)

		histogram := family.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(2), histogram.GetSampleCount())
		assert.InDelta(t, 1.0, histogram.GetSampleSum(), 1e-9)
	})

	t.Run("gauge", func(t *testing.T) {
		assert.Equal(t, float64(4), testutil.ToFloat64(m.gauges["auth_test_cache_entries"]))
	})
}

func Test_PrometheusMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusMetrics(reg)
	second := NewPrometheusMetrics(reg)

	tags := map[string]string{"reason": "expired"}
	first.IncCounter("auth_test_evictions_total", tags)
	assert.NotPanics(t, func() {
		second.IncCounter("auth_test_evictions_total", tags)
	})

	assert.Equal(t, float64(2), testutil.ToFloat64(first.counters["auth_test_evictions_total"].With(tags)))
	assert.Same(t, first.counters["auth_test_evictions_total"], second.counters["auth_test_evictions_total"])
}
