// Command generate_sample_artifacts writes small synthetic scaler and
// classifier exports for both pipelines, plus a labelled dataset for each,
// so the server and the evaluator can run without trained models.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"exoplanet-ml/internal/common"
	"exoplanet-ml/internal/ml"

	"github.com/rs/zerolog/log"
)

var exoplanetClasses = []string{"CANDIDATE", "CONFIRMED", "FALSE POSITIVE"}

type scalerExport struct {
	Type    string    `json:"type"`
	Version string    `json:"version"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

type classifierExport struct {
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Classes   []any     `json:"classes"`
	NFeatures int       `json:"n_features"`
	BaseScore float64   `json:"base_score"`
	Trees     []ml.Tree `json:"trees"`
}

func main() {
	var (
		modelDir = flag.String("models", "models", "Directory to write artifacts to")
		dataDir  = flag.String("data", "data", "Directory to write sample datasets to")
		trees    = flag.Int("trees", 25, "Trees per ensemble")
		samples  = flag.Int("samples", 500, "Rows per sample dataset")
		seed     = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	for _, dir := range []string{*modelDir, *dataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create directory")
		}
	}

	fmt.Printf("Generating sample artifacts...\n")
	fmt.Printf("  Models: %s\n", *modelDir)
	fmt.Printf("  Data: %s\n", *dataDir)
	fmt.Printf("  Trees: %d\n", *trees)

	// Exoplanet: 15 continuous features, 4 flags, random forest.
	exo := ml.Exoplanet
	mustWrite(filepath.Join(*modelDir, filepath.Base(common.DefaultExoplanetScalerPath)),
		standardScaler(rng, exo.Schema.NumContinuous()))
	exoClasses := make([]any, len(exoplanetClasses))
	for i, c := range exoplanetClasses {
		exoClasses[i] = c
	}
	mustWrite(filepath.Join(*modelDir, filepath.Base(common.DefaultExoplanetModelPath)), classifierExport{
		Type:      string(ml.RandomForest),
		Version:   "sample",
		Classes:   exoClasses,
		NFeatures: exo.Schema.Arity(),
		Trees:     forest(rng, *trees, exo.Schema, len(exoplanetClasses)),
	})

	// Habitability: 13 continuous features, 2 categorical, boosted binary.
	hab := ml.Habitability
	mustWrite(filepath.Join(*modelDir, filepath.Base(common.DefaultHabitabilityScalerPath)),
		standardScaler(rng, hab.Schema.NumContinuous()))
	mustWrite(filepath.Join(*modelDir, filepath.Base(common.DefaultHabitabilityModelPath)), classifierExport{
		Type:      string(ml.GradientBoosting),
		Version:   "sample",
		Classes:   []any{0, 1},
		NFeatures: hab.Schema.Arity(),
		BaseScore: -0.5,
		Trees:     boosted(rng, *trees, hab.Schema),
	})

	if err := writeDataset(filepath.Join(*dataDir, "exoplanet_sample.csv"), rng, *samples, exo.Schema,
		func(i int) string { return exoplanetClasses[i%len(exoplanetClasses)] }); err != nil {
		log.Fatal().Err(err).Msg("Failed to write exoplanet dataset")
	}
	if err := writeDataset(filepath.Join(*dataDir, "habitability_sample.csv"), rng, *samples, hab.Schema,
		func(i int) string { return strconv.Itoa(i % 2) }); err != nil {
		log.Fatal().Err(err).Msg("Failed to write habitability dataset")
	}

	fmt.Printf("✓ Generated sample artifacts for %d pipelines\n", len(ml.Definitions()))
}

func standardScaler(rng *rand.Rand, n int) scalerExport {
	s := scalerExport{Type: "standard", Version: "sample", Mean: make([]float64, n), Scale: make([]float64, n)}
	for i := 0; i < n; i++ {
		s.Mean[i] = rng.NormFloat64() * 10
		s.Scale[i] = 0.5 + rng.Float64()*5
	}
	return s
}

// forest builds depth-2 trees: a scaled feature split followed by a flag split.
func forest(rng *rand.Rand, n int, schema *ml.IndexSchema, classes int) []ml.Tree {
	cont, cat := schema.Continuous(), schema.Categorical()
	out := make([]ml.Tree, n)
	for t := range out {
		nodes := []ml.TreeNode{
			{Feature: cont[rng.Intn(len(cont))], Threshold: rng.NormFloat64() * 0.5, Left: 1, Right: 2},
			{Feature: cat[rng.Intn(len(cat))], Threshold: 0.5, Left: 3, Right: 4},
			{Feature: cont[rng.Intn(len(cont))], Threshold: rng.NormFloat64() * 0.5, Left: 5, Right: 6},
		}
		for i := 0; i < 4; i++ {
			nodes = append(nodes, ml.TreeNode{Left: -1, Right: -1, Value: classCounts(rng, classes)})
		}
		out[t] = ml.Tree{Nodes: nodes}
	}
	return out
}

func classCounts(rng *rand.Rand, classes int) []float64 {
	v := make([]float64, classes)
	for i := range v {
		v[i] = float64(rng.Intn(50))
	}
	v[rng.Intn(classes)] += 50
	return v
}

func boosted(rng *rand.Rand, n int, schema *ml.IndexSchema) []ml.Tree {
	cont := schema.Continuous()
	out := make([]ml.Tree, n)
	for t := range out {
		out[t] = ml.Tree{Nodes: []ml.TreeNode{
			{Feature: cont[rng.Intn(len(cont))], Threshold: rng.NormFloat64() * 0.5, Left: 1, Right: 2, DefaultLeft: true},
			{Left: -1, Right: -1, Value: []float64{-0.1 - rng.Float64()*0.1}},
			{Left: -1, Right: -1, Value: []float64{0.1 + rng.Float64()*0.1}},
		}}
	}
	return out
}

func writeDataset(path string, rng *rand.Rand, rows int, schema *ml.IndexSchema, label func(int) string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := make([]string, 0, schema.Arity()+1)
	for i := 0; i < schema.Arity(); i++ {
		header = append(header, fmt.Sprintf("f%d", i))
	}
	header = append(header, "label")
	if err := w.Write(header); err != nil {
		return err
	}

	for r := 0; r < rows; r++ {
		record := make([]string, 0, len(header))
		for i := 0; i < schema.Arity(); i++ {
			v := rng.NormFloat64() * 10
			if schema.IsCategorical(i) {
				v = float64(rng.Intn(2))
			}
			record = append(record, strconv.FormatFloat(v, 'f', 4, 64))
		}
		record = append(record, label(r))
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func mustWrite(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to encode artifact")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to write artifact")
	}
	fmt.Printf("  wrote %s\n", path)
}
