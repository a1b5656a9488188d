package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exoplanet-ml/internal/cfg"
	"exoplanet-ml/internal/common"
	"exoplanet-ml/internal/explain"
	"exoplanet-ml/internal/metrics"
	"exoplanet-ml/internal/ml"
	"exoplanet-ml/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)

	mm := ml.NewModelManager(mw)
	pipelines := loadPipelines(c, mm)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
		recordArtifacts(store, mm.Artifacts())
	}

	explainer := initializeExplainer(c)

	opts := []ml.ServerOption{ml.WithArtifacts(mm.Artifacts())}
	if store != nil {
		opts = append(opts, ml.WithArtifactHistory(store))
	}
	server := ml.NewModelServer(ml.ServerConfig{
		Port:               c.Port,
		AllowedOrigins:     c.AllowedOrigins,
		ExplanationTimeout: c.ExplanationTimeout,
		RequestTimeout:     c.RequestTimeout,
		ClientErrorsAs400:  c.ClientErrorsAs400,
		MetricsHandler:     m.Handler(),
	}, pipelines, explainer, mw, opts...)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("model server error")
			cancel()
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, server)
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogFormat == common.LogFormatConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// loadPipelines loads both model pairs. Any failure stops startup.
func loadPipelines(c cfg.Settings, mm *ml.ModelManager) []*ml.Pipeline {
	paths := map[string]ml.ModelPaths{
		common.PipelineExoplanet: {
			ScalerPath:     c.Exoplanet.Scaler,
			ClassifierPath: c.Exoplanet.Classifier,
		},
		common.PipelineHabitability: {
			ScalerPath:     c.Habitability.Scaler,
			ClassifierPath: c.Habitability.Classifier,
		},
	}

	var pipelines []*ml.Pipeline
	for _, def := range ml.Definitions() {
		p, err := mm.Load(def, paths[def.Name])
		if err != nil {
			log.Fatal().Err(err).Str("pipeline", def.Name).Msg("failed to load pipeline")
		}
		pipelines = append(pipelines, p)
	}
	return pipelines
}

// initializeStorage initializes storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Str("path", c.DataPath).Msg("artifact registry unavailable, continuing without it")
		return nil
	}
	return store
}

// recordArtifacts stores this startup's loads and reports artifacts whose
// content changed since the previous run.
func recordArtifacts(store *storage.Store, infos []ml.ArtifactInfo) {
	for _, info := range infos {
		prev, found, err := store.LatestArtifact(info.Name)
		if err != nil {
			log.Warn().Err(err).Str("artifact", info.Name).Msg("failed to read artifact history")
		} else if found && prev.SHA256 != info.SHA256 {
			log.Info().
				Str("artifact", info.Name).
				Str("previous_sha256", prev.SHA256).
				Str("sha256", info.SHA256).
				Msg("model artifact changed since last start")
		}

		if err := store.RecordArtifact(info); err != nil {
			log.Warn().Err(err).Str("artifact", info.Name).Msg("failed to record artifact load")
		}
	}
}

func initializeExplainer(c cfg.Settings) ml.Explainer {
	client, err := explain.NewGeminiClient(explain.Config{
		APIKey:      c.APIKey,
		BaseURL:     c.GeminiBaseURL,
		Model:       c.GeminiModel,
		Temperature: c.GeminiTemperature,
		Timeout:     c.ExplanationTimeout,
		RetryCount:  c.GeminiRetries,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize explanation client")
	}
	log.Info().Str("model", client.Model()).Msg("explanation client ready")
	return client
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, server *ml.ModelServer) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("server stopped")
}
