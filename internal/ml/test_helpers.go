package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu                  sync.Mutex
	predictions         map[string]int
	failures            map[string]int
	latencyCount        int
	confidences         []float64
	modelAge            map[string]float64
	explanations        int
	explanationFailures int
	streamSessions      float64
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		predictions: make(map[string]int),
		failures:    make(map[string]int),
		modelAge:    make(map[string]float64),
	}
}

func (m *MockMetrics) PredictionsInc(pipeline string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[pipeline]++
}

func (m *MockMetrics) FailuresInc(pipeline, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[pipeline+"/"+kind]++
}

func (m *MockMetrics) LatencyObserve(pipeline string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyCount++
}

func (m *MockMetrics) ConfidenceObserve(pipeline string, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidences = append(m.confidences, confidence)
}

func (m *MockMetrics) ModelAgeSet(artifact string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge[artifact] = seconds
}

func (m *MockMetrics) ExplanationsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.explanations++
}

func (m *MockMetrics) ExplanationFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.explanationFailures++
}

func (m *MockMetrics) ExplanationLatencyObserve(seconds float64) {}

func (m *MockMetrics) StreamSessionsAdd(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamSessions += delta
}

func (m *MockMetrics) Predictions(pipeline string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions[pipeline]
}

func (m *MockMetrics) Failures(pipeline, kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[pipeline+"/"+kind]
}

func (m *MockMetrics) Explanations() (total, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.explanations, m.explanationFailures
}
