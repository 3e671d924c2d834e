package reply

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

type fakeGenerator struct {
	text   string
	err    error
	delay  time.Duration
	calls  int
	prompt string
	params domain.GenerationParams
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, params domain.GenerationParams) (string, error) {
	f.calls++
	f.prompt = prompt
	f.params = params
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func TestComposeLocalModeNeverCallsGenerator(t *testing.T) {
	gen := &fakeGenerator{text: "resposta gerada"}
	c := NewComposer(gen, Config{Mode: domain.ModeLocal}, zerolog.Nop())

	for _, cat := range []domain.Category{domain.CategoryProductive, domain.CategoryNonProductive} {
		got := c.Compose(context.Background(), cat, "qualquer texto")
		assert.Contains(t, []string{domain.ProductiveReply, domain.NonProductiveReply}, got)
		assert.Equal(t, domain.TemplateReply(cat), got)
	}
	assert.Zero(t, gen.calls)
}

func TestComposeRemoteMode(t *testing.T) {
	tests := []struct {
		name     string
		gen      *fakeGenerator
		timeout  time.Duration
		category domain.Category
		want     string
	}{
		{
			name:     "generated text is trimmed",
			gen:      &fakeGenerator{text: "  Recebemos seu pedido e retornaremos em breve.\n"},
			category: domain.CategoryProductive,
			want:     "Recebemos seu pedido e retornaremos em breve.",
		},
		{
			name:     "error falls back to template",
			gen:      &fakeGenerator{err: errors.New("503")},
			category: domain.CategoryProductive,
			want:     domain.ProductiveReply,
		},
		{
			name:     "blank output falls back to template",
			gen:      &fakeGenerator{text: " \n "},
			category: domain.CategoryNonProductive,
			want:     domain.NonProductiveReply,
		},
		{
			name:     "timeout falls back to template",
			gen:      &fakeGenerator{text: "tarde demais", delay: time.Second},
			timeout:  20 * time.Millisecond,
			category: domain.CategoryNonProductive,
			want:     domain.NonProductiveReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComposer(tt.gen, Config{Mode: domain.ModeRemote, Timeout: tt.timeout}, zerolog.Nop())
			assert.Equal(t, tt.want, c.Compose(context.Background(), tt.category, "Preciso do boleto"))
			assert.Equal(t, 1, tt.gen.calls)
			assert.Equal(t, DefaultMaxTokens, tt.gen.params.MaxTokens)
			assert.InDelta(t, DefaultTemperature, tt.gen.params.Temperature, 1e-12)
		})
	}
}

func TestComposeRemoteWithoutGenerator(t *testing.T) {
	c := NewComposer(nil, Config{Mode: domain.ModeRemote}, zerolog.Nop())
	assert.Equal(t, domain.ProductiveReply, c.Compose(context.Background(), domain.CategoryProductive, "x"))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(domain.CategoryProductive, "  Preciso do status do chamado  ")
	assert.Contains(t, p, "Categoria do email: Produtivo\n")
	assert.Contains(t, p, "\"Preciso do status do chamado\"")
	assert.True(t, strings.HasSuffix(p, "Resposta:"))

	long := strings.Repeat("é", maxPromptTextRunes+50)
	p = BuildPrompt(domain.CategoryNonProductive, long)
	require.NotContains(t, p, long)
	assert.Contains(t, p, strings.Repeat("é", maxPromptTextRunes)+"…")
}

func TestNewComposerDefaults(t *testing.T) {
	for _, temperature := range []float64{-1, 0} {
		c := NewComposer(nil, Config{Temperature: temperature}, zerolog.Nop())
		assert.Equal(t, domain.ModeLocal, c.Mode())
		assert.Equal(t, DefaultMaxTokens, c.cfg.MaxTokens)
		assert.Equal(t, DefaultTemperature, c.cfg.Temperature)
		assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
	}

	c := NewComposer(nil, Config{Temperature: 0.7}, zerolog.Nop())
	assert.Equal(t, 0.7, c.cfg.Temperature)
}
