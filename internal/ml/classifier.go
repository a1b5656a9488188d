package ml

import (
	"fmt"
	"math"
	"strconv"
)

// Classifier is a pretrained model with a fixed class set. Probability vectors
// are aligned with Classes(), which is owned by the classifier and must be
// queried rather than assumed.
type Classifier interface {
	Classes() []string
	NumFeatures() int
	Predict(x []float64) (string, error)
	PredictProba(x []float64) ([]float64, error)
}

// LabeledProbaPredictor is implemented by classifiers that can return the
// point prediction and the probability vector from a single evaluation.
type LabeledProbaPredictor interface {
	PredictWithProba(x []float64) (string, []float64, error)
}

// ConfidenceMode selects how the predicted class is located in the
// probability vector.
type ConfidenceMode int

const (
	// ConfidenceByClassOrder looks the predicted label up in Classes().
	ConfidenceByClassOrder ConfidenceMode = iota
	// ConfidenceByClassIndex treats an integer label (0, 1, ...) as the
	// probability index directly.
	ConfidenceByClassIndex
)

// Prediction is the outcome of one classifier call.
type Prediction struct {
	Class         string
	ClassIndex    int
	Confidence    float64
	Probabilities []float64
}

// ClassifierAdapter turns a Classifier into a (label, confidence) predictor.
type ClassifierAdapter struct {
	clf  Classifier
	mode ConfidenceMode
}

func NewClassifierAdapter(clf Classifier, mode ConfidenceMode) *ClassifierAdapter {
	return &ClassifierAdapter{clf: clf, mode: mode}
}

// Predict returns the predicted class and the probability mass the classifier
// assigned to that class.
func (a *ClassifierAdapter) Predict(x []float64) (Prediction, error) {
	if n := a.clf.NumFeatures(); len(x) != n {
		return Prediction{}, &InferenceError{Err: fmt.Errorf("classifier expects %d features, got %d", n, len(x))}
	}

	label, proba, err := a.evaluate(x)
	if err != nil {
		return Prediction{}, &InferenceError{Err: err}
	}

	classes := a.clf.Classes()
	if len(proba) != len(classes) {
		return Prediction{}, &InferenceError{Err: fmt.Errorf("expected %d probabilities, got %d", len(classes), len(proba))}
	}

	pos, err := a.position(label, classes)
	if err != nil {
		return Prediction{}, &InferenceError{Err: err}
	}

	confidence := proba[pos]
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Prediction{}, &InferenceError{Err: fmt.Errorf("invalid probability %f for class %q", confidence, label)}
	}

	return Prediction{
		Class:         label,
		ClassIndex:    pos,
		Confidence:    confidence,
		Probabilities: proba,
	}, nil
}

func (a *ClassifierAdapter) evaluate(x []float64) (string, []float64, error) {
	if lp, ok := a.clf.(LabeledProbaPredictor); ok {
		return lp.PredictWithProba(x)
	}
	label, err := a.clf.Predict(x)
	if err != nil {
		return "", nil, err
	}
	proba, err := a.clf.PredictProba(x)
	if err != nil {
		return "", nil, err
	}
	return label, proba, nil
}

func (a *ClassifierAdapter) position(label string, classes []string) (int, error) {
	known := indexOf(classes, label)
	if known < 0 {
		return 0, fmt.Errorf("predicted class %q is not one of %v", label, classes)
	}
	if a.mode == ConfidenceByClassOrder {
		return known, nil
	}

	v, err := strconv.Atoi(label)
	if err != nil {
		return 0, fmt.Errorf("predicted class %q is not an integer indicator", label)
	}
	if v < 0 || v >= len(classes) {
		return 0, fmt.Errorf("predicted class %d outside probability vector of length %d", v, len(classes))
	}
	return v, nil
}

func indexOf(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}
