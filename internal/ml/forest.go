package ml

import (
	"fmt"
	"math"
)

// EnsembleKind identifies how tree outputs are combined.
type EnsembleKind string

const (
	// RandomForest averages per-tree class distributions.
	RandomForest EnsembleKind = "random_forest"
	// GradientBoosting sums per-tree margins and applies a sigmoid or softmax.
	GradientBoosting EnsembleKind = "gradient_boosting"
)

// TreeNode is one node of an exported decision tree. Leaves have Left < 0.
// Internal nodes send x[Feature] left when it is below Threshold (inclusive
// for random forests, strict for gradient boosting) and NaN values follow
// DefaultLeft.
type TreeNode struct {
	Feature     int       `json:"feature"`
	Threshold   float64   `json:"threshold"`
	Left        int       `json:"left"`
	Right       int       `json:"right"`
	DefaultLeft bool      `json:"default_left,omitempty"`
	Value       []float64 `json:"value,omitempty"`
}

func (n TreeNode) isLeaf() bool { return n.Left < 0 }

// Tree is a flat node table rooted at index 0. ClassIndex is the output group
// a boosted tree contributes to in multi-class models.
type Tree struct {
	Nodes      []TreeNode `json:"nodes"`
	ClassIndex int        `json:"class_index,omitempty"`
}

// TreeEnsemble is a read-only tree ensemble classifier.
type TreeEnsemble struct {
	kind      EnsembleKind
	classes   []string
	nFeatures int
	trees     []Tree
	baseScore float64
}

// NewTreeEnsemble validates the tree structure so that prediction never walks
// out of bounds or loops.
func NewTreeEnsemble(kind EnsembleKind, classes []string, nFeatures int, trees []Tree, baseScore float64) (*TreeEnsemble, error) {
	if kind != RandomForest && kind != GradientBoosting {
		return nil, fmt.Errorf("unknown ensemble kind %q", kind)
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("ensemble needs at least 2 classes, got %d", len(classes))
	}
	seen := make(map[string]bool, len(classes))
	for _, c := range classes {
		if seen[c] {
			return nil, fmt.Errorf("duplicate class %q", c)
		}
		seen[c] = true
	}
	if nFeatures <= 0 {
		return nil, fmt.Errorf("ensemble needs a positive feature count, got %d", nFeatures)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("ensemble has no trees")
	}

	e := &TreeEnsemble{
		kind:      kind,
		classes:   append([]string(nil), classes...),
		nFeatures: nFeatures,
		trees:     trees,
		baseScore: baseScore,
	}
	for i, t := range trees {
		if err := e.validateTree(t); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return e, nil
}

func (e *TreeEnsemble) validateTree(t Tree) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("no nodes")
	}
	if e.kind == GradientBoosting && (t.ClassIndex < 0 || t.ClassIndex >= e.groups()) {
		return fmt.Errorf("class index %d outside [0,%d)", t.ClassIndex, e.groups())
	}

	leafWidth := len(e.classes)
	if e.kind == GradientBoosting {
		leafWidth = 1
	}

	for i, n := range t.Nodes {
		if n.isLeaf() {
			if len(n.Value) != leafWidth {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(n.Value), leafWidth)
			}
			if e.kind == RandomForest {
				if err := validateDistribution(n.Value); err != nil {
					return fmt.Errorf("leaf %d: %w", i, err)
				}
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= e.nFeatures {
			return fmt.Errorf("node %d splits on feature %d outside [0,%d)", i, n.Feature, e.nFeatures)
		}
		// Children stored after their parent keep every walk finite.
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children (%d, %d)", i, n.Left, n.Right)
		}
	}
	return nil
}

// validateDistribution requires class counts that can be normalized.
func validateDistribution(v []float64) error {
	total := 0.0
	for _, c := range v {
		if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("invalid class weight %v", c)
		}
		total += c
	}
	if total <= 0 {
		return fmt.Errorf("class weights sum to %v", total)
	}
	return nil
}

// groups is the number of boosted output margins.
func (e *TreeEnsemble) groups() int {
	if len(e.classes) == 2 {
		return 1
	}
	return len(e.classes)
}

func (e *TreeEnsemble) Kind() EnsembleKind { return e.kind }

func (e *TreeEnsemble) Classes() []string { return append([]string(nil), e.classes...) }

func (e *TreeEnsemble) NumFeatures() int { return e.nFeatures }

func (e *TreeEnsemble) NumTrees() int { return len(e.trees) }

func (e *TreeEnsemble) Predict(x []float64) (string, error) {
	label, _, err := e.PredictWithProba(x)
	return label, err
}

// PredictWithProba returns the argmax class together with the probability
// vector it was taken from, walking each tree once.
func (e *TreeEnsemble) PredictWithProba(x []float64) (string, []float64, error) {
	proba, err := e.PredictProba(x)
	if err != nil {
		return "", nil, err
	}
	best := 0
	for i := 1; i < len(proba); i++ {
		if proba[i] > proba[best] {
			best = i
		}
	}
	return e.classes[best], proba, nil
}

func (e *TreeEnsemble) PredictProba(x []float64) ([]float64, error) {
	if len(x) != e.nFeatures {
		return nil, fmt.Errorf("expected %d features, got %d", e.nFeatures, len(x))
	}
	if e.kind == RandomForest {
		return e.averageProba(x), nil
	}
	return e.boostedProba(x), nil
}

func (e *TreeEnsemble) averageProba(x []float64) []float64 {
	out := make([]float64, len(e.classes))
	for _, t := range e.trees {
		v := e.leaf(t, x).Value
		total := 0.0
		for _, c := range v {
			total += c
		}
		for k, c := range v {
			out[k] += c / total
		}
	}
	for k := range out {
		out[k] /= float64(len(e.trees))
	}
	return out
}

func (e *TreeEnsemble) boostedProba(x []float64) []float64 {
	margins := make([]float64, e.groups())
	for k := range margins {
		margins[k] = e.baseScore
	}
	for _, t := range e.trees {
		margins[t.ClassIndex] += e.leaf(t, x).Value[0]
	}

	if len(margins) == 1 {
		p := sigmoid(margins[0])
		return []float64{1 - p, p}
	}
	return softmax(margins)
}

func (e *TreeEnsemble) leaf(t Tree, x []float64) TreeNode {
	node := t.Nodes[0]
	for !node.isLeaf() {
		val := x[node.Feature]
		var left bool
		switch {
		case math.IsNaN(val):
			left = node.DefaultLeft
		case e.kind == GradientBoosting:
			left = val < node.Threshold
		default:
			left = val <= node.Threshold
		}
		if left {
			node = t.Nodes[node.Left]
		} else {
			node = t.Nodes[node.Right]
		}
	}
	return node
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func softmax(margins []float64) []float64 {
	maxM := margins[0]
	for _, m := range margins[1:] {
		if m > maxM {
			maxM = m
		}
	}
	out := make([]float64, len(margins))
	sum := 0.0
	for i, m := range margins {
		out[i] = math.Exp(m - maxM)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
