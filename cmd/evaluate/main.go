package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"exoplanet-ml/internal/common"
	"exoplanet-ml/internal/evaluate"
	"exoplanet-ml/internal/metrics"
	"exoplanet-ml/internal/ml"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		pipeline    = flag.String("pipeline", common.PipelineExoplanet, "Pipeline to evaluate: exoplanet, habitability")
		dataPath    = flag.String("data", "", "Path to labelled dataset")
		dataFormat  = flag.String("format", "auto", "Data format: auto, csv, json")
		labelColumn = flag.String("label", evaluate.DefaultLabelColumn, "CSV column holding the expected class")
		workers     = flag.Int("workers", 0, "Parallel workers (0 = GOMAXPROCS)")
		outputPath  = flag.String("output", "evaluation", "Output directory for reports")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		scalerPath  = flag.String("scaler", "", "Scaler artifact (defaults to the pipeline's standard path)")
		modelPath   = flag.String("model", "", "Classifier artifact (defaults to the pipeline's standard path)")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *dataPath == "" {
		log.Fatal().Msg("-data is required")
	}

	def, paths, err := resolvePipeline(*pipeline, *scalerPath, *modelPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pipeline")
	}

	fmt.Println("=== Evaluation Configuration ===")
	fmt.Printf("Pipeline: %s\n", def.Name)
	fmt.Printf("Scaler: %s\n", paths.ScalerPath)
	fmt.Printf("Model: %s\n", paths.ClassifierPath)
	fmt.Printf("Data Path: %s\n", *dataPath)
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Println("================================")

	mm := ml.NewModelManager(metrics.NewWrapper(metrics.New()))
	p, err := mm.Load(def, paths)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load pipeline")
	}

	loader := evaluate.NewDataLoader()
	if err := loadData(loader, *dataPath, *dataFormat, *labelColumn); err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}
	if loader.GetDataCount() == 0 {
		log.Fatal().Int("skipped", loader.Skipped()).Msg("No usable samples in dataset")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := evaluate.NewEngine(p, *workers).Run(ctx, loader.Samples())
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation aborted")
	}

	reporter := evaluate.NewReporter(results, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}

	// Print summary to console
	reporter.PrintSummary()

	log.Info().
		Str("output", *outputPath).
		Msg("Evaluation completed successfully")
}

func resolvePipeline(name, scalerPath, modelPath string) (ml.Definition, ml.ModelPaths, error) {
	var (
		def   ml.Definition
		paths ml.ModelPaths
	)
	switch strings.ToLower(name) {
	case common.PipelineExoplanet:
		def = ml.Exoplanet
		paths = ml.ModelPaths{
			ScalerPath:     common.DefaultExoplanetScalerPath,
			ClassifierPath: common.DefaultExoplanetModelPath,
		}
	case common.PipelineHabitability:
		def = ml.Habitability
		paths = ml.ModelPaths{
			ScalerPath:     common.DefaultHabitabilityScalerPath,
			ClassifierPath: common.DefaultHabitabilityModelPath,
		}
	default:
		return ml.Definition{}, ml.ModelPaths{}, fmt.Errorf("unknown pipeline %q", name)
	}

	if scalerPath != "" {
		paths.ScalerPath = scalerPath
	}
	if modelPath != "" {
		paths.ClassifierPath = modelPath
	}
	return def, paths, nil
}

// loadData picks a reader by format, or by file extension for "auto".
func loadData(loader *evaluate.DataLoader, path, format, labelColumn string) error {
	if format == "auto" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			format = "csv"
		case ".json", ".jsonl":
			format = "json"
		default:
			return fmt.Errorf("cannot determine file format for: %s", path)
		}
	}

	switch format {
	case "csv":
		return loader.LoadFromCSV(path, labelColumn)
	case "json":
		return loader.LoadFromJSON(path)
	default:
		return fmt.Errorf("unknown data format %q", format)
	}
}
