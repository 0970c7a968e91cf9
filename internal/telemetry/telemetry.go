// Package telemetry defines the Prometheus metrics exported by the inference
// server.
//
// All recording methods are nil-safe, so components can be constructed
// without metrics in tests and tools.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prediction outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Reload results.
const (
	ReloadSucceeded = "succeeded"
	ReloadFailed    = "failed"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	PredictionsTotal    *prometheus.CounterVec   // predictions by endpoint and outcome
	PredictionLatency   *prometheus.HistogramVec // handler latency by endpoint
	RiskLevelTotal      *prometheus.CounterVec   // successful predictions by risk tier
	AttributionFailures prometheus.Counter       // attributions that failed while the prediction succeeded
	ModelLoaded         prometheus.Gauge         // 1 when a model is being served
	ModelReloadsTotal   *prometheus.CounterVec   // reload attempts by result
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered with registerer (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of prediction requests",
		}, []string{"endpoint", "outcome"}),
		PredictionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RiskLevelTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_level_total",
			Help: "Total number of predictions per risk level",
		}, []string{"level"}),
		AttributionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_failures_total",
			Help: "Total number of failed feature attributions",
		}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_loaded",
			Help: "Whether a model is loaded (1) or not (0)",
		}),
		ModelReloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "model_reloads_total",
			Help: "Total number of model reload attempts",
		}, []string{"result"}),
	}
}

// ObservePrediction records one prediction request.
func (m *Metrics) ObservePrediction(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PredictionsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.PredictionLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveRiskLevel counts a served risk tier.
func (m *Metrics) ObserveRiskLevel(level string) {
	if m == nil {
		return
	}
	m.RiskLevelTotal.WithLabelValues(level).Inc()
}

// AttributionFailed counts an attribution failure.
func (m *Metrics) AttributionFailed() {
	if m == nil {
		return
	}
	m.AttributionFailures.Inc()
}

// SetModelLoaded updates the model_loaded gauge.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.ModelLoaded.Set(1)
	} else {
		m.ModelLoaded.Set(0)
	}
}

// ObserveReload counts a reload attempt with the given result.
func (m *Metrics) ObserveReload(result string) {
	if m == nil {
		return
	}
	m.ModelReloadsTotal.WithLabelValues(result).Inc()
}
