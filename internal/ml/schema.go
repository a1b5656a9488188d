package ml

import (
	"fmt"
)

type featureRole uint8

const (
	roleUnassigned featureRole = iota
	roleContinuous
	roleCategorical
)

// slot describes one position of a feature vector: its role and its rank
// within the ordered index set that declared it.
type slot struct {
	role featureRole
	rank int
}

// IndexSchema splits a positional feature vector into a continuous subset,
// which is scaled, and a categorical subset, which is passed through.
//
// The slot table is derived from the declared index sets once, at
// construction, so for every continuous position i the extraction rank used by
// SplitContinuous and the reinsertion rank used by Reassemble are the same
// number. An IndexSchema is immutable and safe for concurrent use.
type IndexSchema struct {
	slots       []slot
	continuous  []int
	categorical []int
}

// NewIndexSchema validates that continuous and categorical are disjoint and
// together cover [0, arity) exactly once.
func NewIndexSchema(arity int, continuous, categorical []int) (*IndexSchema, error) {
	if arity <= 0 {
		return nil, fmt.Errorf("schema arity must be positive, got %d", arity)
	}

	slots := make([]slot, arity)
	assign := func(indices []int, role featureRole, setName string) error {
		for rank, idx := range indices {
			if idx < 0 || idx >= arity {
				return fmt.Errorf("%s index %d out of range [0,%d)", setName, idx, arity)
			}
			if slots[idx].role != roleUnassigned {
				return fmt.Errorf("index %d declared more than once", idx)
			}
			slots[idx] = slot{role: role, rank: rank}
		}
		return nil
	}

	if err := assign(continuous, roleContinuous, "continuous"); err != nil {
		return nil, err
	}
	if err := assign(categorical, roleCategorical, "categorical"); err != nil {
		return nil, err
	}

	for i, s := range slots {
		if s.role == roleUnassigned {
			return nil, fmt.Errorf("index %d is neither continuous nor categorical", i)
		}
	}

	return &IndexSchema{
		slots:       slots,
		continuous:  append([]int(nil), continuous...),
		categorical: append([]int(nil), categorical...),
	}, nil
}

// MustIndexSchema is like NewIndexSchema but panics on an inconsistent
// schema. It is meant for package-level pipeline definitions.
func MustIndexSchema(arity int, continuous, categorical []int) *IndexSchema {
	s, err := NewIndexSchema(arity, continuous, categorical)
	if err != nil {
		panic(fmt.Sprintf("invalid index schema: %v", err))
	}
	return s
}

// Arity returns the length of the feature vectors this schema describes.
func (s *IndexSchema) Arity() int { return len(s.slots) }

// NumContinuous returns the size of the continuous index set.
func (s *IndexSchema) NumContinuous() int { return len(s.continuous) }

// IsContinuous reports whether position i is scaled.
func (s *IndexSchema) IsContinuous(i int) bool {
	return i >= 0 && i < len(s.slots) && s.slots[i].role == roleContinuous
}

// IsCategorical reports whether position i is passed through unscaled.
func (s *IndexSchema) IsCategorical(i int) bool {
	return i >= 0 && i < len(s.slots) && s.slots[i].role == roleCategorical
}

// Continuous returns the continuous indices in declared order.
func (s *IndexSchema) Continuous() []int { return append([]int(nil), s.continuous...) }

// Categorical returns the categorical indices in declared order.
func (s *IndexSchema) Categorical() []int { return append([]int(nil), s.categorical...) }

// SplitContinuous extracts the continuous values of v in declared order.
func (s *IndexSchema) SplitContinuous(v []float64) ([]float64, error) {
	return s.extract(v, s.continuous)
}

// SplitCategorical extracts the categorical values of v in declared order.
func (s *IndexSchema) SplitCategorical(v []float64) ([]float64, error) {
	return s.extract(v, s.categorical)
}

func (s *IndexSchema) extract(v []float64, indices []int) ([]float64, error) {
	if len(v) != len(s.slots) {
		return nil, &DimensionMismatchError{Component: "schema", Expected: len(s.slots), Actual: len(v)}
	}
	out := make([]float64, len(indices))
	for rank, idx := range indices {
		out[rank] = v[idx]
	}
	return out, nil
}

// Reassemble rebuilds a full-length vector: continuous positions take the
// scaled value at their rank, categorical positions keep the original value.
func (s *IndexSchema) Reassemble(original, scaled []float64) ([]float64, error) {
	if len(original) != len(s.slots) {
		return nil, &DimensionMismatchError{Component: "schema", Expected: len(s.slots), Actual: len(original)}
	}
	if len(scaled) != len(s.continuous) {
		return nil, &DimensionMismatchError{Component: "reassembly", Expected: len(s.continuous), Actual: len(scaled)}
	}

	out := make([]float64, len(s.slots))
	for i, sl := range s.slots {
		if sl.role == roleContinuous {
			out[i] = scaled[sl.rank]
		} else {
			out[i] = original[i]
		}
	}
	return out, nil
}
