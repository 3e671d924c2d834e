package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/httputil"
	"triage_server/pkg/resilience"
)

const DefaultOpenAIModel = "gpt-4o-mini"

var _ out.TextGenerator = (*OpenAIGenerator)(nil)

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string // empty uses api.openai.com
	Model    string
	Timeout  time.Duration
	Breakers *resilience.Registry
}

// OpenAIGenerator writes replies with a chat completion model.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewOpenAIGenerator creates a generator for any OpenAI-compatible endpoint.
func NewOpenAIGenerator(cfg OpenAIConfig, log zerolog.Logger) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = httputil.InferenceClient()

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}

	log = log.With().Str("component", "openai_generator").Logger()
	g := &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
		cb:      resilience.NewBreaker(resilience.DefaultBreakerConfig("openai-generation"), log),
		log:     log,
	}
	if cfg.Breakers != nil {
		cfg.Breakers.Add(g.cb)
	}
	return g
}

// Generate sends prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, params domain.GenerationParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.cb.Execute(func() (any, error) {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   params.MaxTokens,
			Temperature: float32(params.Temperature),
		})
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
				apiErr.HTTPStatusCode != 429 {
				return nil, resilience.Permanent(err)
			}
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		g.log.Warn().Err(err).Str("model", g.model).Msg("chat completion failed")
		return "", fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return strings.TrimSpace(result.(string)), nil
}
