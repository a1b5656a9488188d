package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"exoplanet-ml/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// thresholdRunner predicts "1" when the first feature is positive and fails
// on empty vectors.
type thresholdRunner struct {
	calls atomic.Int32
}

func (r *thresholdRunner) Name() string { return "habitability" }

func (r *thresholdRunner) Run(features []float64) (ml.Result, error) {
	r.calls.Add(1)
	if len(features) == 0 {
		return ml.Result{}, &ml.ValidationError{Pipeline: "habitability", Reason: "exactly 2 features are required, got 0"}
	}
	pred := ml.Prediction{Class: "0", Confidence: 0.6}
	if features[0] > 0 {
		pred = ml.Prediction{Class: "1", ClassIndex: 1, Confidence: 0.8}
	}
	return ml.Result{Pipeline: "habitability", Prediction: pred}, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDataLoader_LoadFromCSV(t *testing.T) {
	path := writeFile(t, "data.csv", strings.Join([]string{
		"f0,f1,label",
		"1.5,2,1.0",
		"-1, 3, 0",
		"oops,3,1",
		"0.5,0.5,",
		"2,2,1",
	}, "\n"))

	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromCSV(path, ""))

	samples := dl.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, Sample{Row: 2, Features: []float64{1.5, 2}, Label: "1"}, samples[0])
	assert.Equal(t, Sample{Row: 3, Features: []float64{-1, 3}, Label: "0"}, samples[1])
	assert.Equal(t, 6, samples[2].Row)
	assert.Equal(t, 2, dl.Skipped())
	assert.Equal(t, 3, dl.GetDataCount())
}

func TestDataLoader_LoadFromCSV_LabelColumnAnywhere(t *testing.T) {
	path := writeFile(t, "data.csv", "koi_disposition,a,b\nCONFIRMED,1,2\nFALSE POSITIVE,3,4\n")

	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromCSV(path, "koi_disposition"))

	samples := dl.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, "CONFIRMED", samples[0].Label)
	assert.Equal(t, []float64{3, 4}, samples[1].Features)
}

func TestDataLoader_LoadFromCSV_Errors(t *testing.T) {
	dl := NewDataLoader()
	assert.Error(t, dl.LoadFromCSV(filepath.Join(t.TempDir(), "missing.csv"), ""))

	noLabel := writeFile(t, "nolabel.csv", "a,b\n1,2\n")
	assert.ErrorContains(t, dl.LoadFromCSV(noLabel, "label"), "label")

	empty := writeFile(t, "empty.csv", "")
	assert.Error(t, dl.LoadFromCSV(empty, ""))
}

func TestDataLoader_LoadFromJSON(t *testing.T) {
	path := writeFile(t, "data.jsonl", strings.Join([]string{
		`{"features":[1,2],"label":1}`,
		`{"features":[3,4],"label":"CANDIDATE"}`,
		`{"features":[5,6],"label":null}`,
		`{"label":"0"}`,
	}, "\n"))

	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromJSON(path))

	samples := dl.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, "1", samples[0].Label)
	assert.Equal(t, "CANDIDATE", samples[1].Label)
	assert.Equal(t, 2, dl.Skipped())

	bad := writeFile(t, "bad.jsonl", `{"features":[1`)
	assert.Error(t, NewDataLoader().LoadFromJSON(bad))
}

func TestEngine_Run(t *testing.T) {
	samples := []Sample{
		{Row: 1, Features: []float64{1, 0}, Label: "1"},
		{Row: 2, Features: []float64{-1, 0}, Label: "0"},
		{Row: 3, Features: []float64{2, 0}, Label: "0"},
		{Row: 4, Features: []float64{-2, 0}, Label: "1"},
		{Row: 5, Features: []float64{3, 0}, Label: "1"},
		{Row: 6, Features: nil, Label: "1"},
	}
	runner := &thresholdRunner{}

	results, err := NewEngine(runner, 3).Run(context.Background(), samples)
	require.NoError(t, err)

	assert.Equal(t, int32(6), runner.calls.Load())
	assert.Equal(t, "habitability", results.Pipeline)
	assert.Equal(t, 6, results.Total)
	assert.Equal(t, 5, results.Scored)
	assert.Equal(t, 1, results.Failures)
	assert.Equal(t, 3, results.Correct)
	assert.InDelta(t, 0.6, results.Accuracy, 1e-12)
	assert.InDelta(t, (0.8*3+0.6*2)/5, results.MeanConfidence, 1e-12)

	assert.Equal(t, 2, results.Confusion["1"]["1"])
	assert.Equal(t, 1, results.Confusion["1"]["0"])
	assert.Equal(t, 1, results.Confusion["0"]["1"])
	assert.Equal(t, 1, results.Confusion["0"]["0"])

	require.Contains(t, results.Classes, "1")
	assert.InDelta(t, 2.0/3.0, results.Classes["1"].Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, results.Classes["1"].Recall, 1e-12)
	assert.Equal(t, []string{"0", "1"}, results.ClassNames())

	// outcomes keep input order regardless of scheduling
	for i, o := range results.Outcomes {
		assert.Equal(t, samples[i].Row, o.Row)
	}
	assert.Contains(t, results.Outcomes[5].Error, "exactly 2 features")
}

func TestEngine_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(&thresholdRunner{}, 2).Run(ctx, []Sample{{Features: []float64{1}, Label: "1"}})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEngine_EmptyDataset(t *testing.T) {
	results, err := NewEngine(&thresholdRunner{}, 0).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, results.Total)
	assert.Equal(t, 0.0, results.Accuracy)
}

func TestReporter_GenerateReport(t *testing.T) {
	samples := []Sample{
		{Row: 2, Features: []float64{1}, Label: "1"},
		{Row: 3, Features: []float64{-1}, Label: "1"},
		{Row: 4, Features: nil, Label: "0"},
	}
	results, err := NewEngine(&thresholdRunner{}, 1).Run(context.Background(), samples)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "reports")
	require.NoError(t, NewReporter(results, out).GenerateReport())

	summary, err := os.ReadFile(filepath.Join(out, "habitability_evaluation_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Accuracy: 50.00%")
	assert.Contains(t, string(summary), "Failures: 1")
	assert.Contains(t, string(summary), "1 -> 0: 1")

	csvData, err := os.ReadFile(filepath.Join(out, "habitability_predictions.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Row,Label,Predicted,Confidence,Correct,Error", lines[0])
	assert.Equal(t, "2,1,1,0.8000,true,", lines[1])

	raw, err := os.ReadFile(filepath.Join(out, "habitability_evaluation.json"))
	require.NoError(t, err)
	var report struct {
		Summary  Results   `json:"summary"`
		Outcomes []Outcome `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, 2, report.Summary.Scored)
	assert.Len(t, report.Outcomes, 3)
}
