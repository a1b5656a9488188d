package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of one pipeline run. It is built fresh per request.
type Result struct {
	Pipeline   string
	Prediction Prediction
	// Payload is the client-facing response produced by the definition.
	Payload any
}

// Pipeline runs validate -> split -> scale -> reassemble -> classify for one
// definition. It holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	def        Definition
	scaler     Scaler
	classifier Classifier
	adapter    *ClassifierAdapter
	metrics    MetricsInterface
}

// NewPipeline checks that the scaler and classifier fit the schema. A mismatch
// is a configuration defect and must stop startup.
func NewPipeline(def Definition, scaler Scaler, clf Classifier, metrics MetricsInterface) (*Pipeline, error) {
	if def.Schema == nil {
		return nil, fmt.Errorf("pipeline %s has no schema", def.Name)
	}
	if def.Respond == nil {
		return nil, fmt.Errorf("pipeline %s has no response mapping", def.Name)
	}
	if scaler == nil || clf == nil {
		return nil, fmt.Errorf("pipeline %s needs a scaler and a classifier", def.Name)
	}
	if got, want := scaler.Arity(), def.Schema.NumContinuous(); got != want {
		return nil, fmt.Errorf("pipeline %s: %w", def.Name,
			&DimensionMismatchError{Component: "scaler", Expected: want, Actual: got})
	}
	if got, want := clf.NumFeatures(), def.Schema.Arity(); got != want {
		return nil, fmt.Errorf("pipeline %s: %w", def.Name,
			&DimensionMismatchError{Component: "classifier", Expected: want, Actual: got})
	}

	return &Pipeline{
		def:        def,
		scaler:     scaler,
		classifier: clf,
		adapter:    NewClassifierAdapter(clf, def.Confidence),
		metrics:    metrics,
	}, nil
}

func (p *Pipeline) Name() string { return p.def.Name }

// Definition returns the definition the pipeline was built from.
func (p *Pipeline) Definition() Definition { return p.def }

// Classes returns the classifier's class ordering.
func (p *Pipeline) Classes() []string { return p.classifier.Classes() }

// Run classifies one feature vector.
func (p *Pipeline) Run(features []float64) (Result, error) {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.LatencyObserve(p.def.Name, time.Since(start).Seconds())
		}
	}()

	res, err := p.run(features)
	if err != nil {
		if p.metrics != nil {
			p.metrics.FailuresInc(p.def.Name, failureKind(err))
		}
		log.Debug().Err(err).Str("pipeline", p.def.Name).Int("features", len(features)).Msg("prediction failed")
		return Result{}, err
	}

	if p.metrics != nil {
		p.metrics.PredictionsInc(p.def.Name)
		p.metrics.ConfidenceObserve(p.def.Name, res.Prediction.Confidence)
	}
	log.Debug().
		Str("pipeline", p.def.Name).
		Str("class", res.Prediction.Class).
		Float64("confidence", res.Prediction.Confidence).
		Msg("prediction successful")
	return res, nil
}

// RunJSON classifies a vector whose entries are still undecoded JSON. A null
// or non-numeric entry fails validation instead of decoding as zero.
func (p *Pipeline) RunJSON(entries []json.RawMessage) (Result, error) {
	features, err := p.decodeFeatures(entries)
	if err != nil {
		if p.metrics != nil {
			p.metrics.FailuresInc(p.def.Name, failureKind(err))
		}
		log.Debug().Err(err).Str("pipeline", p.def.Name).Int("features", len(entries)).Msg("prediction failed")
		return Result{}, err
	}
	return p.Run(features)
}

func (p *Pipeline) decodeFeatures(entries []json.RawMessage) ([]float64, error) {
	if err := p.validateLength(len(entries)); err != nil {
		return nil, err
	}
	features := make([]float64, len(entries))
	for i, raw := range entries {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, &ValidationError{Pipeline: p.def.Name, Reason: fmt.Sprintf("feature %d is null", i)}
		}
		if err := json.Unmarshal(raw, &features[i]); err != nil {
			return nil, &ValidationError{Pipeline: p.def.Name, Reason: fmt.Sprintf("feature %d is not a number", i)}
		}
	}
	return features, nil
}

func (p *Pipeline) run(features []float64) (Result, error) {
	if err := p.validate(features); err != nil {
		return Result{}, err
	}

	continuous, err := p.def.Schema.SplitContinuous(features)
	if err != nil {
		return Result{}, err
	}
	scaled, err := p.scaler.Transform(continuous)
	if err != nil {
		return Result{}, err
	}
	x, err := p.def.Schema.Reassemble(features, scaled)
	if err != nil {
		return Result{}, err
	}

	pred, err := p.adapter.Predict(x)
	if err != nil {
		if ie, ok := err.(*InferenceError); ok && ie.Pipeline == "" {
			ie.Pipeline = p.def.Name
		}
		return Result{}, err
	}

	return Result{
		Pipeline:   p.def.Name,
		Prediction: pred,
		Payload:    p.def.Respond(pred),
	}, nil
}

func (p *Pipeline) validateLength(n int) error {
	if arity := p.def.Schema.Arity(); n != arity {
		return &ValidationError{
			Pipeline: p.def.Name,
			Reason:   fmt.Sprintf("exactly %d features are required, got %d", arity, n),
		}
	}
	return nil
}

func (p *Pipeline) validate(features []float64) error {
	if err := p.validateLength(len(features)); err != nil {
		return err
	}
	for i, f := range features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &ValidationError{
				Pipeline: p.def.Name,
				Reason:   fmt.Sprintf("feature %d is not a finite number", i),
			}
		}
	}
	return nil
}
