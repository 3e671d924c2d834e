// Package reply composes the suggested answer for a classified email.
package reply

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

const (
	DefaultMaxTokens   = 120
	DefaultTemperature = 0.2
	DefaultTimeout     = 60 * time.Second

	// maxPromptTextRunes caps how much of the email is embedded in the prompt.
	maxPromptTextRunes = 2000
)

const promptTemplate = "Você é um assistente de suporte ao cliente de uma empresa financeira.\n" +
	"Categoria do email: %s\n" +
	"Objetivo: redigir uma resposta breve, educada e clara em português do Brasil.\n" +
	"- Se for Produtivo: confirme recebimento, explique próximo passo e prazo curto.\n" +
	"- Se for Improdutivo: agradeça e informe que não é necessária ação.\n\n" +
	"Email do cliente:\n\"%s\"\n\n" +
	"Resposta:"

// Config tunes the generation call.
type Config struct {
	Mode        domain.OperatingMode
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Composer produces the suggested reply for a category.
//
// In local mode it returns the fixed template and never touches the generator. In remote
// mode it asks the generator and falls back to the template on errors or empty output.
type Composer struct {
	generator out.TextGenerator
	cfg       Config
	log       zerolog.Logger
}

// NewComposer creates a reply composer. Zero values in cfg take the defaults; a zero
// temperature is not sent as such because OpenAI-compatible APIs read it as "unset".
func NewComposer(generator out.TextGenerator, cfg Config, log zerolog.Logger) *Composer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeLocal
	}
	return &Composer{
		generator: generator,
		cfg:       cfg,
		log:       log.With().Str("component", "reply_composer").Logger(),
	}
}

// Mode returns the operating mode the composer was built with.
func (c *Composer) Mode() domain.OperatingMode {
	return c.cfg.Mode
}

// Compose returns a reply for category. It never fails.
func (c *Composer) Compose(ctx context.Context, category domain.Category, originalText string) string {
	if c.cfg.Mode != domain.ModeRemote || c.generator == nil {
		return domain.TemplateReply(category)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	text, err := c.generator.Generate(ctx, BuildPrompt(category, originalText), domain.GenerationParams{
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("category", string(category)).Msg("reply generation failed, using template")
		return domain.TemplateReply(category)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		c.log.Debug().Str("category", string(category)).Msg("empty generated reply, using template")
		return domain.TemplateReply(category)
	}
	return text
}

// BuildPrompt renders the generation instruction for a category and email.
func BuildPrompt(category domain.Category, originalText string) string {
	return fmt.Sprintf(promptTemplate, category, truncateRunes(strings.TrimSpace(originalText), maxPromptTextRunes))
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
