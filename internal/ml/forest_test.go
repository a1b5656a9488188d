package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stump splits on one feature and stores a leaf value on each side.
func stump(feature int, threshold float64, left, right []float64) Tree {
	return Tree{Nodes: []TreeNode{
		{Feature: feature, Threshold: threshold, Left: 1, Right: 2},
		{Left: -1, Right: -1, Value: left},
		{Left: -1, Right: -1, Value: right},
	}}
}

func TestTreeEnsemble_RandomForestAveragesNormalizedLeaves(t *testing.T) {
	trees := []Tree{
		stump(0, 0.5, []float64{8, 2}, []float64{0, 10}),
		stump(1, 0.0, []float64{1, 1}, []float64{3, 1}),
	}
	e, err := NewTreeEnsemble(RandomForest, []string{"no", "yes"}, 2, trees, 0)
	require.NoError(t, err)

	// tree 0 -> left [0.8,0.2]; tree 1 -> right [0.75,0.25]
	proba, err := e.PredictProba([]float64{0.5, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.775, 0.225}, proba, 1e-12)

	label, err := e.Predict([]float64{0.5, 1})
	require.NoError(t, err)
	assert.Equal(t, "no", label)

	// tree 0 -> right [0,1]; tree 1 -> left [0.5,0.5]
	proba, err = e.PredictProba([]float64{0.6, -1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, proba, 1e-12)
}

func TestTreeEnsemble_GradientBoostingBinary(t *testing.T) {
	trees := []Tree{
		stump(0, 1.0, []float64{-0.5}, []float64{0.5}),
		stump(0, 1.0, []float64{-0.25}, []float64{0.25}),
	}
	e, err := NewTreeEnsemble(GradientBoosting, []string{"0", "1"}, 1, trees, 0)
	require.NoError(t, err)

	// strict comparison: 1.0 is not < 1.0, so both trees go right
	proba, err := e.PredictProba([]float64{1.0})
	require.NoError(t, err)
	p := 1 / (1 + math.Exp(-0.75))
	assert.InDeltaSlice(t, []float64{1 - p, p}, proba, 1e-12)

	label, err := e.Predict([]float64{1.0})
	require.NoError(t, err)
	assert.Equal(t, "1", label)

	label, err = e.Predict([]float64{0.0})
	require.NoError(t, err)
	assert.Equal(t, "0", label)
}

func TestTreeEnsemble_GradientBoostingMulticlass(t *testing.T) {
	trees := []Tree{
		{Nodes: []TreeNode{{Left: -1, Right: -1, Value: []float64{1}}}, ClassIndex: 0},
		{Nodes: []TreeNode{{Left: -1, Right: -1, Value: []float64{2}}}, ClassIndex: 1},
		{Nodes: []TreeNode{{Left: -1, Right: -1, Value: []float64{0}}}, ClassIndex: 2},
	}
	e, err := NewTreeEnsemble(GradientBoosting, []string{"a", "b", "c"}, 1, trees, 0.5)
	require.NoError(t, err)

	proba, err := e.PredictProba([]float64{0})
	require.NoError(t, err)

	sum := math.Exp(1.5) + math.Exp(2.5) + math.Exp(0.5)
	assert.InDeltaSlice(t, []float64{math.Exp(1.5) / sum, math.Exp(2.5) / sum, math.Exp(0.5) / sum}, proba, 1e-12)

	label, err := e.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, "b", label)
}

func TestTreeEnsemble_NaNFollowsDefaultBranch(t *testing.T) {
	tree := stump(0, 0, []float64{1, 0}, []float64{0, 1})
	tree.Nodes[0].DefaultLeft = true
	e, err := NewTreeEnsemble(RandomForest, []string{"l", "r"}, 1, []Tree{tree}, 0)
	require.NoError(t, err)

	label, err := e.Predict([]float64{math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, "l", label)
}

func TestTreeEnsemble_RejectsWrongFeatureCount(t *testing.T) {
	e, err := NewTreeEnsemble(RandomForest, []string{"a", "b"}, 2, []Tree{stump(0, 0, []float64{1, 0}, []float64{0, 1})}, 0)
	require.NoError(t, err)

	_, err = e.PredictProba([]float64{1})
	assert.Error(t, err)
}

func TestNewTreeEnsemble_Validation(t *testing.T) {
	good := stump(0, 0, []float64{1, 0}, []float64{0, 1})

	testCases := []struct {
		name    string
		kind    EnsembleKind
		classes []string
		nFeat   int
		trees   []Tree
	}{
		{"unknown kind", "svm", []string{"a", "b"}, 1, []Tree{good}},
		{"single class", RandomForest, []string{"a"}, 1, []Tree{good}},
		{"duplicate class", RandomForest, []string{"a", "a"}, 1, []Tree{good}},
		{"no trees", RandomForest, []string{"a", "b"}, 1, nil},
		{"no features", RandomForest, []string{"a", "b"}, 0, []Tree{good}},
		{"feature out of range", RandomForest, []string{"a", "b"}, 1, []Tree{stump(3, 0, []float64{1, 0}, []float64{0, 1})}},
		{"leaf width", RandomForest, []string{"a", "b"}, 1, []Tree{stump(0, 0, []float64{1}, []float64{0, 1})}},
		{"boosted leaf width", GradientBoosting, []string{"a", "b"}, 1, []Tree{good}},
		{"all-zero leaf", RandomForest, []string{"a", "b"}, 1, []Tree{good, stump(0, 0, []float64{0, 0}, []float64{0, 1})}},
		{"negative leaf weight", RandomForest, []string{"a", "b"}, 1, []Tree{stump(0, 0, []float64{2, -1}, []float64{0, 1})}},
		{"NaN leaf weight", RandomForest, []string{"a", "b"}, 1, []Tree{stump(0, 0, []float64{math.NaN(), 1}, []float64{0, 1})}},
		{"empty tree", RandomForest, []string{"a", "b"}, 1, []Tree{{}}},
		{"cycle", RandomForest, []string{"a", "b"}, 1, []Tree{{Nodes: []TreeNode{
			{Feature: 0, Left: 0, Right: 1},
			{Left: -1, Right: -1, Value: []float64{1, 0}},
		}}}},
		{"class index out of range", GradientBoosting, []string{"a", "b"}, 1, []Tree{{
			Nodes: []TreeNode{{Left: -1, Right: -1, Value: []float64{1}}}, ClassIndex: 1,
		}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTreeEnsemble(tc.kind, tc.classes, tc.nFeat, tc.trees, 0)
			assert.Error(t, err)
		})
	}
}

func TestTreeEnsemble_PredictWithProba(t *testing.T) {
	trees := []Tree{
		stump(0, 0.5, []float64{8, 2}, []float64{0, 10}),
		stump(1, 0.0, []float64{1, 1}, []float64{3, 1}),
	}
	e, err := NewTreeEnsemble(RandomForest, []string{"no", "yes"}, 2, trees, 0)
	require.NoError(t, err)

	label, proba, err := e.PredictWithProba([]float64{0.6, -1})
	require.NoError(t, err)
	assert.Equal(t, "yes", label)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, proba, 1e-12)

	sum := 0.0
	for _, p := range proba {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)

	_, _, err = e.PredictWithProba([]float64{1})
	assert.Error(t, err)
}

func TestTreeEnsemble_BoostedLeavesMayBeNegative(t *testing.T) {
	e, err := NewTreeEnsemble(GradientBoosting, []string{"0", "1"}, 1,
		[]Tree{stump(0, 0, []float64{-0.5}, []float64{0.5})}, 0)
	require.NoError(t, err)

	label, proba, err := e.PredictWithProba([]float64{-1})
	require.NoError(t, err)
	assert.Equal(t, "0", label)
	assert.InDelta(t, 1-1/(1+math.Exp(0.5)), proba[0], 1e-12)
}
