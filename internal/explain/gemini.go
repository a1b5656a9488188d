// Package explain calls a hosted generative model to answer free-text
// questions about predictions.
package explain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel       = "gemini-2.0-flash"
	DefaultTemperature = 0.5
)

// Config configures a GeminiClient.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	// Timeout bounds a single HTTP attempt; callers bound the whole call
	// through the context.
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// GeminiClient calls the generateContent endpoint of the Generative Language
// API.
type GeminiClient struct {
	model       string
	temperature float64
	rest        *resty.Client
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

// APIError is the error body returned by the API.
type APIError struct {
	Body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
	HTTPStatus int `json:"-"`
}

func (e *APIError) Error() string {
	if e.Body.Message == "" {
		return fmt.Sprintf("gemini: HTTP %d", e.HTTPStatus)
	}
	return fmt.Sprintf("gemini: %d %s: %s", e.HTTPStatus, e.Body.Status, e.Body.Message)
}

// NewGeminiClient builds a client with an HTTP/2 capable transport and
// retries on rate limiting and server errors.
func NewGeminiClient(config Config) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryCount < 0 {
		config.RetryCount = 0
	}
	if config.RetryWait <= 0 {
		config.RetryWait = 500 * time.Millisecond
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("gemini: failed to configure http2: %w", err)
	}

	r := resty.New().
		SetTransport(transport).
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetHeader("x-goog-api-key", config.APIKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(config.RetryWait).
		SetRetryMaxWaitTime(10 * config.RetryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})

	return &GeminiClient{
		model:       config.Model,
		temperature: config.Temperature,
		rest:        r,
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// Explain sends prompt as a single user turn and returns the concatenated text
// of the first candidate.
func (c *GeminiClient) Explain(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is empty")
	}

	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: c.temperature},
	}

	start := time.Now()
	result := &generateResponse{}
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("model", c.model).
		SetBody(body).
		SetResult(result).
		SetError(apiErr).
		Post("/models/{model}:generateContent")
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.HTTPStatus = resp.StatusCode()
		return "", apiErr
	}

	if len(result.Candidates) == 0 {
		return "", errors.New("response contained no candidates")
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := sb.String()
	if text == "" {
		return "", fmt.Errorf("candidate has no text (finish reason %q)", result.Candidates[0].FinishReason)
	}

	log.Debug().
		Str("model", c.model).
		Int("attempts", resp.Request.Attempt).
		Dur("latency", time.Since(start)).
		Msg("explanation generated")
	return text, nil
}
