package ml

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const maxRequestBytes = 1 << 20

// Explainer produces a natural-language explanation for a prompt.
type Explainer interface {
	Explain(ctx context.Context, prompt string) (string, error)
}

// ArtifactHistory lists previously recorded artifact loads.
type ArtifactHistory interface {
	ArtifactNames() ([]string, error)
	ListArtifacts(name string) ([]ArtifactInfo, error)
}

// ServerConfig configures the model server.
type ServerConfig struct {
	Port               int
	AllowedOrigins     []string
	ExplanationTimeout time.Duration
	// RequestTimeout bounds reading a request.
	RequestTimeout time.Duration
	// ClientErrorsAs400 reports validation failures as 400 instead of 500.
	ClientErrorsAs400 bool
	MetricsHandler    http.Handler
}

// ModelServer provides the HTTP API for model predictions.
type ModelServer struct {
	config    ServerConfig
	pipelines []*Pipeline
	byName    map[string]*Pipeline
	explainer Explainer
	metrics   MetricsInterface
	artifacts []ArtifactInfo
	history   ArtifactHistory
	startedAt time.Time
	server    *http.Server
}

// ServerOption customizes a ModelServer.
type ServerOption func(*ModelServer)

// WithArtifacts reports the given artifacts on /model/info.
func WithArtifacts(infos []ArtifactInfo) ServerOption {
	return func(ms *ModelServer) { ms.artifacts = append([]ArtifactInfo(nil), infos...) }
}

// WithArtifactHistory adds recorded load history to /model/info.
func WithArtifactHistory(h ArtifactHistory) ServerOption {
	return func(ms *ModelServer) { ms.history = h }
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// FeaturesRequest is the body of the prediction endpoints. Entries stay raw
// until the pipeline decodes them, so null is rejected rather than read as 0.
type FeaturesRequest struct {
	Features []json.RawMessage `json:"features"`
}

// ExplanationRequest is the body of the explanation endpoint.
type ExplanationRequest struct {
	Message *string `json:"message"`
}

// ExplanationResponse is returned by the explanation endpoint.
type ExplanationResponse struct {
	Explanation string `json:"explanation"`
}

// NewModelServer creates a new HTTP server for model serving
func NewModelServer(config ServerConfig, pipelines []*Pipeline, explainer Explainer, metrics MetricsInterface, opts ...ServerOption) *ModelServer {
	if config.ExplanationTimeout <= 0 {
		config.ExplanationTimeout = 30 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}

	ms := &ModelServer{
		config:    config,
		pipelines: pipelines,
		byName:    make(map[string]*Pipeline, len(pipelines)),
		explainer: explainer,
		metrics:   metrics,
		startedAt: time.Now(),
	}
	for _, p := range pipelines {
		ms.byName[p.Name()] = p
	}
	for _, opt := range opts {
		opt(ms)
	}

	ms.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.RequestTimeout,
		WriteTimeout:      config.ExplanationTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return ms
}

// Handler returns the routed handler wrapped in CORS and request logging.
func (ms *ModelServer) Handler() http.Handler {
	router := mux.NewRouter()
	for _, p := range ms.pipelines {
		router.HandleFunc(p.Definition().Route, ms.handlePredict(p)).Methods(http.MethodPost)
	}
	router.HandleFunc("/gemini-explanation", ms.handleExplanation).Methods(http.MethodPost)
	router.HandleFunc("/ws/predict", ms.handleStream).Methods(http.MethodGet)
	router.HandleFunc("/health", ms.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/model/info", ms.handleModelInfo).Methods(http.MethodGet)
	if ms.config.MetricsHandler != nil {
		router.Handle("/metrics", ms.config.MetricsHandler).Methods(http.MethodGet)
	}
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Detail: "method not allowed"})
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Detail: "not found"})
	})

	return logRequests(newCORS(ms.config.AllowedOrigins).Handler(router))
}

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Int("pipelines", len(ms.pipelines)).Msg("starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *ModelServer) handlePredict(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FeaturesRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
			return
		}
		if req.Features == nil {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: "field required: features"})
			return
		}

		res, err := p.RunJSON(req.Features)
		if err != nil {
			status := http.StatusInternalServerError
			var ve *ValidationError
			if ms.config.ClientErrorsAs400 && errors.As(err, &ve) {
				status = http.StatusBadRequest
			}
			if status >= http.StatusInternalServerError {
				log.Error().Err(err).Str("pipeline", p.Name()).Msg("prediction failed")
			}
			writeJSON(w, status, ErrorResponse{Detail: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, res.Payload)
	}
}

func (ms *ModelServer) handleExplanation(w http.ResponseWriter, r *http.Request) {
	var req ExplanationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
		return
	}
	if req.Message == nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: "field required: message"})
		return
	}

	start := time.Now()
	if ms.metrics != nil {
		ms.metrics.ExplanationsInc()
	}

	explanation, err := ms.explain(r.Context(), strings.TrimSpace(*req.Message))
	if ms.metrics != nil {
		ms.metrics.ExplanationLatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		if ms.metrics != nil {
			ms.metrics.ExplanationFailuresInc()
		}
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("explanation failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: fmt.Sprintf("Gemini Error: %v", err.Err)})
		return
	}

	writeJSON(w, http.StatusOK, ExplanationResponse{Explanation: explanation})
}

// explain calls the explainer under its own timeout.
func (ms *ModelServer) explain(ctx context.Context, prompt string) (string, *ExternalServiceError) {
	if ms.explainer == nil {
		return "", &ExternalServiceError{Provider: "gemini", Err: errors.New("explanation service not configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, ms.config.ExplanationTimeout)
	defer cancel()

	text, err := ms.explainer.Explain(ctx, prompt)
	if err != nil {
		var ext *ExternalServiceError
		if errors.As(err, &ext) {
			return "", ext
		}
		return "", &ExternalServiceError{Provider: "gemini", Err: err}
	}
	return text, nil
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status        string   `json:"status"`
	Pipelines     []string `json:"pipelines"`
	Explanations  bool     `json:"explanations"`
	UptimeSeconds float64  `json:"uptime_seconds"`
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(ms.pipelines))
	for _, p := range ms.pipelines {
		names = append(names, p.Name())
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Pipelines:     names,
		Explanations:  ms.explainer != nil,
		UptimeSeconds: time.Since(ms.startedAt).Seconds(),
	})
}

// PipelineInfo describes a pipeline on /model/info.
type PipelineInfo struct {
	Name        string   `json:"name"`
	Route       string   `json:"route"`
	Arity       int      `json:"arity"`
	Continuous  []int    `json:"continuous"`
	Categorical []int    `json:"categorical"`
	Classes     []string `json:"classes"`
}

// ModelInfoResponse is returned by /model/info.
type ModelInfoResponse struct {
	Pipelines []PipelineInfo            `json:"pipelines"`
	Artifacts []ArtifactInfo            `json:"artifacts"`
	History   map[string][]ArtifactInfo `json:"history,omitempty"`
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	resp := ModelInfoResponse{
		Pipelines: make([]PipelineInfo, 0, len(ms.pipelines)),
		Artifacts: ms.artifacts,
	}
	for _, p := range ms.pipelines {
		def := p.Definition()
		resp.Pipelines = append(resp.Pipelines, PipelineInfo{
			Name:        def.Name,
			Route:       def.Route,
			Arity:       def.Schema.Arity(),
			Continuous:  def.Schema.Continuous(),
			Categorical: def.Schema.Categorical(),
			Classes:     p.Classes(),
		})
	}

	if ms.history != nil {
		resp.History = ms.artifactHistory()
	}

	writeJSON(w, http.StatusOK, resp)
}

// artifactHistory collects every artifact the registry knows, including ones
// no longer loaded.
func (ms *ModelServer) artifactHistory() map[string][]ArtifactInfo {
	names, err := ms.history.ArtifactNames()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list artifact history")
		return nil
	}
	history := make(map[string][]ArtifactInfo, len(names))
	for _, name := range names {
		records, err := ms.history.ListArtifacts(name)
		if err != nil {
			log.Warn().Err(err).Str("artifact", name).Msg("failed to read artifact history")
			continue
		}
		history[name] = records
	}
	return history
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

// newCORS allows cross-origin calls from the listed origins; "*" or an empty
// list allows any. Allowed origins are echoed back so credentialed requests
// work.
func newCORS(allowed []string) *cors.Cors {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}

	return cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return allowAll || set[origin]
		},
		AllowedMethods: []string{
			http.MethodDelete, http.MethodGet, http.MethodHead, http.MethodOptions,
			http.MethodPatch, http.MethodPost, http.MethodPut,
		},
		AllowedHeaders:       []string{"*"},
		AllowCredentials:     true,
		MaxAge:               600,
		OptionsSuccessStatus: http.StatusOK,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the logging wrapper.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sr.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}
