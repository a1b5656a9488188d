// Package ml serves predictions from pretrained tabular classifiers.
//
// A pipeline validates a positional feature vector, splits it with an
// IndexSchema, scales the continuous subset, reassembles the vector in its
// original order and classifies it. Schemas, scalers and classifiers are
// loaded once at startup and only read afterwards, so pipelines are safe for
// concurrent use without locking.
package ml

// PredictorInterface is the request-scoped entry point of a pipeline.
type PredictorInterface interface {
	// Name identifies the pipeline, e.g. "exoplanet".
	Name() string

	// Run classifies one feature vector. Any error means no result.
	Run(features []float64) (Result, error)
}

// MetricsInterface defines the metrics methods used by pipelines and the
// model server. A nil MetricsInterface disables metrics.
type MetricsInterface interface {
	PredictionsInc(pipeline string)
	FailuresInc(pipeline, kind string)
	LatencyObserve(pipeline string, seconds float64)
	ConfidenceObserve(pipeline string, confidence float64)
	ModelAgeSet(artifact string, seconds float64)
	ExplanationsInc()
	ExplanationFailuresInc()
	ExplanationLatencyObserve(seconds float64)
	StreamSessionsAdd(delta float64)
}
