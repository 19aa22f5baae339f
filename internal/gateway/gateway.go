// Package gateway owns the LLM request/response contract: payload
// shaping, the HTTP call to the configured text-completion endpoint, and
// strict/lenient validation of the raw response. Retry and backoff
// against the endpoint are an external collaborator's concern; the
// gateway makes exactly one attempt per call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/digestd/internal/digest"
	"github.com/fyrsmithlabs/digestd/internal/logging"
)

// Default configuration values.
const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1024
	// Rate limiter defaults: 50 requests per minute.
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Config holds the endpoint settings.
type Config struct {
	Enabled        bool   `koanf:"enabled"`
	Endpoint       string `koanf:"endpoint"`
	Model          string `koanf:"model"`
	APIKey         string `koanf:"api_key"`
	Timeout        int    `koanf:"timeout"`          // seconds
	MaxTokens      int    `koanf:"max_tokens"`       // response budget
	MaxBatchTokens int    `koanf:"max_batch_tokens"` // request batching budget
	MaxConcurrent  int    `koanf:"max_concurrent"`   // hierarchical fan-out bound
	Language       string `koanf:"language"`
	PrivacyMode    string `koanf:"privacy_mode"`
	StrictJSON     bool   `koanf:"strict_json"`
}

// Gateway talks to one LLM endpoint.
type Gateway struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// New builds a gateway from config.
func New(cfg Config, logger *logging.Logger) (*Gateway, error) {
	if cfg.Enabled && cfg.Endpoint == "" {
		return nil, fmt.Errorf("llm endpoint required when enabled")
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Gateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		logger:     logger.Named("gateway"),
	}, nil
}

// Available reports whether the LLM path is configured and enabled.
func (g *Gateway) Available() bool {
	return g.cfg.Enabled && g.cfg.Endpoint != ""
}

// completionRequest is the wire shape sent to the endpoint. The endpoint
// is an opaque text-completion service; the response body is raw text
// expected (but not trusted) to be LLMResponse JSON.
type completionRequest struct {
	Model     string  `json:"model,omitempty"`
	MaxTokens int     `json:"max_tokens"`
	Payload   Request `json:"payload"`
}

// Summarize sends one request and validates the response. Exactly one
// attempt: timeouts and transport failures surface as EndpointError, bad
// model output as InvalidJSONError, both recoverable only via the
// degradation path.
func (g *Gateway) Summarize(ctx context.Context, req Request) (*digest.LLMResponse, error) {
	if !g.Available() {
		return nil, ErrDisabled
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &EndpointError{TraceID: req.TraceID, Err: err}
	}

	body, err := json.Marshal(completionRequest{
		Model:     g.cfg.Model,
		MaxTokens: g.cfg.MaxTokens,
		Payload:   req,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build llm request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	g.logger.Debug(ctx, "llm request",
		zap.Int("messages", len(req.Messages)),
		zap.Int("bytes", len(body)))

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, &EndpointError{TraceID: req.TraceID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &EndpointError{TraceID: req.TraceID, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &EndpointError{TraceID: req.TraceID, Status: resp.StatusCode}
	}

	parsed, err := ParseLLMJSON(string(raw), req.TraceID, g.cfg.StrictJSON)
	if err != nil {
		return nil, err
	}

	g.logger.Debug(ctx, "llm response",
		zap.Int("evidence", len(parsed.Evidence)),
		zap.Int("summary_items", len(parsed.Summary)))
	return parsed, nil
}
