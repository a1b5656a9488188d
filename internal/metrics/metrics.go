// Package metrics provides Prometheus metrics collection for the prediction
// service. It defines the pipeline, explanation and streaming metrics exposed
// via the Prometheus metrics endpoint for monitoring and alerting.
//
// Pipeline metrics carry a "pipeline" label so that the exoplanet and
// habitability models can be watched separately.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exoplanet"

// Metrics holds all Prometheus metrics for the prediction service.
type Metrics struct {
	// Pipeline metrics
	Predictions *prometheus.CounterVec   // Successful predictions per pipeline
	Failures    *prometheus.CounterVec   // Failed predictions per pipeline and failure kind
	Latency     *prometheus.HistogramVec // End-to-end pipeline latency in seconds
	Confidence  *prometheus.HistogramVec // Distribution of reported confidences
	ModelAge    *prometheus.GaugeVec     // Age of each loaded artifact in seconds

	// Explanation metrics
	Explanations        prometheus.Counter   // Explanation requests
	ExplanationFailures prometheus.Counter   // Failed explanation requests
	ExplanationLatency  prometheus.Histogram // Explanation round-trip latency

	// Streaming metrics
	StreamSessions prometheus.Gauge // Open websocket prediction streams

	gatherer prometheus.Gatherer
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	m := &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of successful predictions",
		}, []string{"pipeline"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Total number of failed predictions by failure kind",
		}, []string{"pipeline", "kind"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_latency_seconds",
			Help:      "Prediction latency in seconds (end-to-end)",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"pipeline"}),
		Confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_confidence",
			Help:      "Distribution of prediction confidence scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
		}, []string{"pipeline"}),
		ModelAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_age_seconds",
			Help:      "Age of each loaded model artifact in seconds",
		}, []string{"artifact"}),
		Explanations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanations_total",
			Help:      "Total number of explanation requests",
		}),
		ExplanationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanation_failures_total",
			Help:      "Total number of failed explanation requests",
		}),
		ExplanationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "explanation_latency_seconds",
			Help:      "Explanation latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StreamSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_sessions",
			Help:      "Number of open prediction streams",
		}),
	}

	if g, ok := registerer.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler serves the metrics of the registry the metrics were created with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
