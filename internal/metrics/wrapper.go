package metrics

// MetricsWrapper adapts Metrics to the interface the ml package records into.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc(pipeline string) {
	w.m.Predictions.WithLabelValues(pipeline).Inc()
}

func (w *MetricsWrapper) FailuresInc(pipeline, kind string) {
	w.m.Failures.WithLabelValues(pipeline, kind).Inc()
}

func (w *MetricsWrapper) LatencyObserve(pipeline string, seconds float64) {
	w.m.Latency.WithLabelValues(pipeline).Observe(seconds)
}

func (w *MetricsWrapper) ConfidenceObserve(pipeline string, confidence float64) {
	w.m.Confidence.WithLabelValues(pipeline).Observe(confidence)
}

func (w *MetricsWrapper) ModelAgeSet(artifact string, seconds float64) {
	w.m.ModelAge.WithLabelValues(artifact).Set(seconds)
}

func (w *MetricsWrapper) ExplanationsInc() {
	w.m.Explanations.Inc()
}

func (w *MetricsWrapper) ExplanationFailuresInc() {
	w.m.ExplanationFailures.Inc()
}

func (w *MetricsWrapper) ExplanationLatencyObserve(seconds float64) {
	w.m.ExplanationLatency.Observe(seconds)
}

func (w *MetricsWrapper) StreamSessionsAdd(delta float64) {
	w.m.StreamSessions.Add(delta)
}
