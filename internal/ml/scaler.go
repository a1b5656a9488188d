package ml

import (
	"fmt"
)

// Scaler applies a pretrained transform to the continuous subset of a feature
// vector. Implementations are read-only after construction and safe for
// concurrent use.
type Scaler interface {
	// Arity is the number of values Transform expects.
	Arity() int
	// Transform returns a new slice of the same length and order.
	Transform(x []float64) ([]float64, error)
}

// StandardScaler standardizes each value as (x - mean) / scale.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// NewStandardScaler builds a scaler from fitted per-feature means and scales.
// A zero scale is treated as 1, matching how a constant feature is fitted.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) == 0 {
		return nil, fmt.Errorf("standard scaler needs at least one feature")
	}
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("standard scaler: %d means but %d scales", len(mean), len(scale))
	}

	s := &StandardScaler{
		mean:  append([]float64(nil), mean...),
		scale: make([]float64, len(scale)),
	}
	for i, v := range scale {
		if v == 0 {
			v = 1
		}
		s.scale[i] = v
	}
	return s, nil
}

func (s *StandardScaler) Arity() int { return len(s.mean) }

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.mean) {
		return nil, &DimensionMismatchError{Component: "scaler", Expected: len(s.mean), Actual: len(x)}
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

// MinMaxScaler maps each value as x*scale + min, using the fitted per-feature
// offsets of a min-max scaler.
type MinMaxScaler struct {
	min   []float64
	scale []float64
}

func NewMinMaxScaler(min, scale []float64) (*MinMaxScaler, error) {
	if len(min) == 0 {
		return nil, fmt.Errorf("min-max scaler needs at least one feature")
	}
	if len(min) != len(scale) {
		return nil, fmt.Errorf("min-max scaler: %d offsets but %d scales", len(min), len(scale))
	}
	return &MinMaxScaler{
		min:   append([]float64(nil), min...),
		scale: append([]float64(nil), scale...),
	}, nil
}

func (s *MinMaxScaler) Arity() int { return len(s.min) }

func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.min) {
		return nil, &DimensionMismatchError{Component: "scaler", Expected: len(s.min), Actual: len(x)}
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.scale[i] + s.min[i]
	}
	return out, nil
}
