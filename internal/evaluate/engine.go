package evaluate

import (
	"context"
	"runtime"
	"sort"
	"time"

	"exoplanet-ml/internal/ml"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Runner is the part of a pipeline the engine needs.
type Runner interface {
	Name() string
	Run(features []float64) (ml.Result, error)
}

// Outcome is the result of scoring one sample.
type Outcome struct {
	Row        int     `json:"row"`
	Label      string  `json:"label"`
	Predicted  string  `json:"predicted,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Correct    bool    `json:"correct"`
	Error      string  `json:"error,omitempty"`
}

// ClassStats holds per-class precision and recall.
type ClassStats struct {
	Support   int     `json:"support"`
	Predicted int     `json:"predicted"`
	Correct   int     `json:"correct"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// Results holds evaluation results
type Results struct {
	Pipeline       string                    `json:"pipeline"`
	Total          int                       `json:"total"`
	Scored         int                       `json:"scored"`
	Correct        int                       `json:"correct"`
	Failures       int                       `json:"failures"`
	Accuracy       float64                   `json:"accuracy"`
	MeanConfidence float64                   `json:"mean_confidence"`
	Confusion      map[string]map[string]int `json:"confusion"`
	Classes        map[string]*ClassStats    `json:"classes"`
	Outcomes       []Outcome                 `json:"-"`
	StartTime      time.Time                 `json:"start_time"`
	EndTime        time.Time                 `json:"end_time"`
}

// Engine scores samples through a pipeline in parallel.
type Engine struct {
	pipeline Runner
	workers  int
}

// NewEngine creates an engine; workers <= 0 uses GOMAXPROCS.
func NewEngine(pipeline Runner, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{pipeline: pipeline, workers: workers}
}

// Run scores every sample. Pipeline failures are counted per sample; only
// cancellation of ctx aborts the run.
func (e *Engine) Run(ctx context.Context, samples []Sample) (*Results, error) {
	log.Info().
		Str("pipeline", e.pipeline.Name()).
		Int("samples", len(samples)).
		Int("workers", e.workers).
		Msg("Starting evaluation")

	start := time.Now()
	outcomes := make([]Outcome, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range samples {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.score(samples[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := summarize(e.pipeline.Name(), outcomes)
	results.StartTime = start
	results.EndTime = time.Now()

	log.Info().
		Str("pipeline", results.Pipeline).
		Int("scored", results.Scored).
		Int("failures", results.Failures).
		Float64("accuracy", results.Accuracy).
		Dur("elapsed", results.EndTime.Sub(start)).
		Msg("Evaluation complete")
	return results, nil
}

func (e *Engine) score(s Sample) Outcome {
	out := Outcome{Row: s.Row, Label: s.Label}
	res, err := e.pipeline.Run(s.Features)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Predicted = res.Prediction.Class
	out.Confidence = res.Prediction.Confidence
	out.Correct = out.Predicted == s.Label
	return out
}

func summarize(pipeline string, outcomes []Outcome) *Results {
	r := &Results{
		Pipeline:  pipeline,
		Total:     len(outcomes),
		Confusion: make(map[string]map[string]int),
		Classes:   make(map[string]*ClassStats),
		Outcomes:  outcomes,
	}

	class := func(name string) *ClassStats {
		cs, ok := r.Classes[name]
		if !ok {
			cs = &ClassStats{}
			r.Classes[name] = cs
		}
		return cs
	}

	confidenceSum := 0.0
	for _, o := range outcomes {
		if o.Error != "" {
			r.Failures++
			continue
		}
		r.Scored++
		confidenceSum += o.Confidence

		if r.Confusion[o.Label] == nil {
			r.Confusion[o.Label] = make(map[string]int)
		}
		r.Confusion[o.Label][o.Predicted]++

		class(o.Label).Support++
		class(o.Predicted).Predicted++
		if o.Correct {
			r.Correct++
			class(o.Label).Correct++
		}
	}

	if r.Scored > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Scored)
		r.MeanConfidence = confidenceSum / float64(r.Scored)
	}
	for _, cs := range r.Classes {
		if cs.Predicted > 0 {
			cs.Precision = float64(cs.Correct) / float64(cs.Predicted)
		}
		if cs.Support > 0 {
			cs.Recall = float64(cs.Correct) / float64(cs.Support)
		}
	}
	return r
}

// ClassNames returns every class seen as a label or a prediction, sorted.
func (r *Results) ClassNames() []string {
	names := make([]string, 0, len(r.Classes))
	for name := range r.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
