package ml

import "sync"

// mockScaler multiplies every value by factor and counts calls.
type mockScaler struct {
	arity  int
	factor float64
	mu     sync.Mutex
	calls  int
}

func (s *mockScaler) Arity() int { return s.arity }

func (s *mockScaler) Transform(x []float64) ([]float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if len(x) != s.arity {
		return nil, &DimensionMismatchError{Component: "scaler", Expected: s.arity, Actual: len(x)}
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * s.factor
	}
	return out, nil
}

func (s *mockScaler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// mockClassifier returns a fixed label and probabilities and records the last
// vector it saw.
type mockClassifier struct {
	classes   []string
	nFeatures int
	label     string
	proba     []float64
	err       error

	mu    sync.Mutex
	calls int
	last  []float64
}

func (c *mockClassifier) Classes() []string { return c.classes }

func (c *mockClassifier) NumFeatures() int { return c.nFeatures }

func (c *mockClassifier) Predict(x []float64) (string, error) {
	c.mu.Lock()
	c.calls++
	c.last = append([]float64(nil), x...)
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.label, nil
}

func (c *mockClassifier) PredictProba(x []float64) ([]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	return append([]float64(nil), c.proba...), nil
}

func (c *mockClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *mockClassifier) Last() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// jointClassifier also answers PredictWithProba and counts each entry point.
type jointClassifier struct {
	mockClassifier
	joint int
}

func (c *jointClassifier) PredictWithProba(x []float64) (string, []float64, error) {
	c.mu.Lock()
	c.joint++
	c.mu.Unlock()
	if c.err != nil {
		return "", nil, c.err
	}
	return c.label, append([]float64(nil), c.proba...), nil
}
