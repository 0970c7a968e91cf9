package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	require.NotNil(t, m)

	m.SetModelLoaded(true)
	m.ObservePrediction("predict", OutcomeOK, 10*time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["predictions_total"])
	assert.True(t, names["prediction_latency_seconds"])
	assert.True(t, names["model_loaded"])
}

func TestRecording(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObservePrediction("predict", OutcomeOK, time.Millisecond)
	m.ObservePrediction("predict", OutcomeOK, time.Millisecond)
	m.ObservePrediction("predict", OutcomeInvalid, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("predict", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("predict", OutcomeInvalid)))

	m.ObserveRiskLevel("high")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RiskLevelTotal.WithLabelValues("high")))

	m.AttributionFailed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttributionFailures))

	m.SetModelLoaded(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelLoaded))
	m.SetModelLoaded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelLoaded))

	m.ObserveReload(ReloadFailed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelReloadsTotal.WithLabelValues(ReloadFailed)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePrediction("predict", OutcomeOK, time.Second)
		m.ObserveRiskLevel("low")
		m.AttributionFailed()
		m.SetModelLoaded(true)
		m.ObserveReload(ReloadSucceeded)
	})
}
