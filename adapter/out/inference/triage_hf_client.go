// Package inference talks to hosted models: zero-shot classification and reply generation.
package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/httputil"
	"triage_server/pkg/ratelimit"
	"triage_server/pkg/resilience"
)

const (
	DefaultHFBaseURL         = "https://api-inference.huggingface.co/models"
	DefaultZeroShotModel     = "facebook/bart-large-mnli"
	DefaultGenerationModel   = "google/flan-t5-base"
	DefaultZeroShotTimeout   = 45 * time.Second
	DefaultGenerationTimeout = 60 * time.Second

	maxResponseBytes = 1 << 20
)

var (
	_ out.ZeroShotClassifier = (*HFClient)(nil)
	_ out.TextGenerator      = (*HFClient)(nil)
)

// HFConfig configures the Hugging Face inference client.
type HFConfig struct {
	BaseURL           string
	Token             string
	ZeroShotModel     string
	GenerationModel   string
	ZeroShotTimeout   time.Duration
	GenerationTimeout time.Duration

	HTTPClient *http.Client                    // optional, defaults to the shared inference client
	Limiter    *ratelimit.SlidingWindowLimiter // optional outbound limiter
	Breakers   *resilience.Registry            // optional, receives both breakers
}

// HFClient calls the hosted inference API. Each endpoint has its own circuit breaker
// so a failing generation model does not block classification.
type HFClient struct {
	cfg        HFConfig
	http       *http.Client
	limiter    *ratelimit.SlidingWindowLimiter
	zeroShotCB *gobreaker.CircuitBreaker
	generateCB *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// NewHFClient creates a client; empty config fields take the defaults.
func NewHFClient(cfg HFConfig, log zerolog.Logger) *HFClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHFBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ZeroShotModel == "" {
		cfg.ZeroShotModel = DefaultZeroShotModel
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultGenerationModel
	}
	if cfg.ZeroShotTimeout <= 0 {
		cfg.ZeroShotTimeout = DefaultZeroShotTimeout
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httputil.InferenceClient()
	}

	log = log.With().Str("component", "hf_client").Logger()
	c := &HFClient{
		cfg:        cfg,
		http:       client,
		limiter:    cfg.Limiter,
		zeroShotCB: resilience.NewBreaker(resilience.DefaultBreakerConfig("hf-zero-shot"), log),
		generateCB: resilience.NewBreaker(resilience.DefaultBreakerConfig("hf-generation"), log),
		log:        log,
	}
	if cfg.Breakers != nil {
		cfg.Breakers.Add(c.zeroShotCB)
		cfg.Breakers.Add(c.generateCB)
	}
	return c
}

// =============================================================================
// Zero-shot classification
// =============================================================================

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

// zeroShotRanked is the classic pipeline response.
type zeroShotRanked struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// zeroShotEntry is one element of the list-shaped response.
type zeroShotEntry struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ZeroShot ranks labels for text in single-label mode.
func (c *HFClient) ZeroShot(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	body, err := c.post(ctx, c.zeroShotCB, c.cfg.ZeroShotModel, c.cfg.ZeroShotTimeout, zeroShotRequest{
		Inputs: text,
		Parameters: zeroShotParameters{
			CandidateLabels: labels,
			MultiLabel:      false,
		},
	})
	if err != nil {
		return nil, err
	}

	scores, err := ParseZeroShotResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return scores, nil
}

// ParseZeroShotResponse accepts both {"labels":[..],"scores":[..]} and
// [{"label":..,"score":..}] bodies.
func ParseZeroShotResponse(body []byte) ([]domain.LabelScore, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty zero-shot body")
	}

	if trimmed[0] == '[' {
		var entries []zeroShotEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode zero-shot list: %w", err)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("zero-shot list is empty")
		}
		scores := make([]domain.LabelScore, len(entries))
		for i, e := range entries {
			scores[i] = domain.LabelScore{Label: e.Label, Score: e.Score}
		}
		return scores, nil
	}

	var ranked zeroShotRanked
	if err := json.Unmarshal(trimmed, &ranked); err != nil {
		return nil, fmt.Errorf("decode zero-shot object: %w", err)
	}
	if len(ranked.Labels) == 0 {
		return nil, fmt.Errorf("zero-shot response has no labels")
	}
	if len(ranked.Labels) != len(ranked.Scores) {
		return nil, fmt.Errorf("zero-shot response has %d labels but %d scores", len(ranked.Labels), len(ranked.Scores))
	}
	scores := make([]domain.LabelScore, len(ranked.Labels))
	for i := range ranked.Labels {
		scores[i] = domain.LabelScore{Label: ranked.Labels[i], Score: ranked.Scores[i]}
	}
	return scores, nil
}

// =============================================================================
// Text generation
// =============================================================================

type generationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters generationParameters `json:"parameters"`
}

type generationParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type generatedText struct {
	GeneratedText string `json:"generated_text"`
}

// Generate runs the text2text model on prompt.
func (c *HFClient) Generate(ctx context.Context, prompt string, params domain.GenerationParams) (string, error) {
	body, err := c.post(ctx, c.generateCB, c.cfg.GenerationModel, c.cfg.GenerationTimeout, generationRequest{
		Inputs: prompt,
		Parameters: generationParameters{
			MaxNewTokens: params.MaxTokens,
			Temperature:  params.Temperature,
		},
	})
	if err != nil {
		return "", err
	}

	text, err := ParseGenerationResponse(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return text, nil
}

// ParseGenerationResponse reads [{"generated_text": ..}] (or a bare object).
func ParseGenerationResponse(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty generation body")
	}

	if trimmed[0] == '[' {
		var items []generatedText
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", fmt.Errorf("decode generation list: %w", err)
		}
		if len(items) == 0 {
			return "", fmt.Errorf("generation list is empty")
		}
		return strings.TrimSpace(items[0].GeneratedText), nil
	}

	var item generatedText
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return "", fmt.Errorf("decode generation object: %w", err)
	}
	return strings.TrimSpace(item.GeneratedText), nil
}

// =============================================================================
// Transport
// =============================================================================

// StatusError is a non-2xx answer from the inference API.
type StatusError struct {
	Model      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference %s returned %d: %s", e.Model, e.StatusCode, e.Body)
}

func (c *HFClient) post(ctx context.Context, cb *gobreaker.CircuitBreaker, model string, timeout time.Duration, payload any) ([]byte, error) {
	if allowed, wait := c.limiter.Allow(ctx, model); !allowed {
		return nil, fmt.Errorf("%w: rate limited for %s, retry in %s", domain.ErrRemoteUnavailable, model, wait)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", model, err)
	}

	start := time.Now()
	result, err := cb.Execute(func() (any, error) {
		return c.do(ctx, model, timeout, data)
	})
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("model", model).
			Str("breaker", cb.State().String()).
			Dur("duration", time.Since(start)).
			Msg("inference call failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}

	c.log.Debug().Str("model", model).Dur("duration", time.Since(start)).Msg("inference call completed")
	return result.([]byte), nil
}

func (c *HFClient) do(ctx context.Context, model string, timeout time.Duration, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+model, bytes.NewReader(data))
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, cancel, err := httputil.DoWithTimeout(ctx, c.http, req, timeout)
	defer cancel()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", model, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Model: model, StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		// Server-side trouble and throttling trip the breaker; request errors do not.
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, resilience.Permanent(statusErr)
	}
	return body, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
