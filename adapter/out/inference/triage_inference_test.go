package inference

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
	"triage_server/pkg/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HFClient, *resilience.Registry) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	reg := resilience.NewRegistry()
	c := NewHFClient(HFConfig{
		BaseURL:    srv.URL + "/models/",
		Token:      "hf_test",
		HTTPClient: srv.Client(),
		Breakers:   reg,
	}, zerolog.Nop())
	return c, reg
}

func TestZeroShotRequestShape(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/facebook/bart-large-mnli", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"sequence":"x","labels":["Produtivo","Improdutivo"],"scores":[0.91,0.09]}`))
	})

	scores, err := c.ZeroShot(context.Background(), "Preciso do boleto", []string{"Produtivo", "Improdutivo"})
	require.NoError(t, err)
	assert.Equal(t, []domain.LabelScore{{Label: "Produtivo", Score: 0.91}, {Label: "Improdutivo", Score: 0.09}}, scores)

	assert.Equal(t, "Preciso do boleto", got["inputs"])
	params := got["parameters"].(map[string]any)
	assert.Equal(t, []any{"Produtivo", "Improdutivo"}, params["candidate_labels"])
	assert.Equal(t, false, params["multi_label"])
}

func TestParseZeroShotResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []domain.LabelScore
		wantErr bool
	}{
		{
			name: "ranked object",
			body: `{"labels":["Improdutivo","Produtivo"],"scores":[0.7,0.3]}`,
			want: []domain.LabelScore{{Label: "Improdutivo", Score: 0.7}, {Label: "Produtivo", Score: 0.3}},
		},
		{
			name: "list of entries",
			body: ` [{"label":"Produtivo","score":0.8},{"label":"Improdutivo","score":0.2}]`,
			want: []domain.LabelScore{{Label: "Produtivo", Score: 0.8}, {Label: "Improdutivo", Score: 0.2}},
		},
		{name: "length mismatch", body: `{"labels":["Produtivo","Improdutivo"],"scores":[0.7]}`, wantErr: true},
		{name: "no labels", body: `{"error":"Model is loading"}`, wantErr: true},
		{name: "empty list", body: `[]`, wantErr: true},
		{name: "malformed", body: `{"labels":`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseZeroShotResponse([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZeroShotErrorsWrapRemoteUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error":"Model is loading"}`},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad"}`},
		{name: "malformed body", status: http.StatusOK, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ZeroShot(context.Background(), "x", []string{"Produtivo", "Improdutivo"})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
		})
	}
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	var hits atomic.Int32
	status.Store(http.StatusBadRequest)
	c, reg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	})

	for i := 0; i < 8; i++ {
		_, _ = c.ZeroShot(context.Background(), "x", []string{"Produtivo"})
	}
	assert.Equal(t, gobreaker.StateClosed, c.zeroShotCB.State(), "client errors must not trip the breaker")

	status.Store(http.StatusBadGateway)
	for i := 0; i < 5; i++ {
		_, _ = c.ZeroShot(context.Background(), "x", []string{"Produtivo"})
	}
	assert.Equal(t, gobreaker.StateOpen, c.zeroShotCB.State())
	assert.True(t, reg.AnyOpen())

	before := hits.Load()
	_, err := c.ZeroShot(context.Background(), "x", []string{"Produtivo"})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Equal(t, before, hits.Load(), "open breaker must not reach the server")

	assert.Equal(t, gobreaker.StateClosed, c.generateCB.State())
	assert.Len(t, reg.Stats(), 2)
}

func TestZeroShotTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewHFClient(HFConfig{
		BaseURL:         srv.URL,
		HTTPClient:      srv.Client(),
		ZeroShotTimeout: 30 * time.Millisecond,
	}, zerolog.Nop())

	start := time.Now()
	_, err := c.ZeroShot(context.Background(), "x", []string{"Produtivo"})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestGenerate(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/google/flan-t5-base", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`[{"generated_text":"  Olá! Recebemos sua solicitação.  "}]`))
	})

	text, err := c.Generate(context.Background(), "Resposta:", domain.GenerationParams{MaxTokens: 120, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "Olá! Recebemos sua solicitação.", text)

	params := got["parameters"].(map[string]any)
	assert.Equal(t, float64(120), params["max_new_tokens"])
	assert.Equal(t, 0.2, params["temperature"])
}

func TestParseGenerationResponse(t *testing.T) {
	text, err := ParseGenerationResponse([]byte(`{"generated_text":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	text, err = ParseGenerationResponse([]byte(`[{"generated_text":""}]`))
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = ParseGenerationResponse([]byte(`[]`))
	assert.Error(t, err)
	_, err = ParseGenerationResponse([]byte(`oops`))
	assert.Error(t, err)
}

func TestOpenAIGenerator(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":" Obrigado pelo contato! "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	reg := resilience.NewRegistry()
	g := NewOpenAIGenerator(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "m", Breakers: reg}, zerolog.Nop())

	text, err := g.Generate(context.Background(), "Resposta:", domain.GenerationParams{MaxTokens: 120, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "Obrigado pelo contato!", text)
	assert.Equal(t, "m", req["model"])
	assert.Equal(t, float64(120), req["max_tokens"])
	assert.Len(t, reg.Stats(), 1)
}

func TestOpenAIGeneratorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"down","type":"server_error"}}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, zerolog.Nop())
	_, err := g.Generate(context.Background(), "x", domain.GenerationParams{MaxTokens: 10})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}
