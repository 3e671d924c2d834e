package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

var configKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "USE_REMOTE", "USE_HF", "HF_TOKEN", "HF_API_URL",
	"GENERATOR_BACKEND", "OPENAI_API_KEY", "REPLY_MAX_TOKENS", "REPLY_TEMPERATURE",
	"BATCH_CONCURRENCY", "MAX_UPLOAD_MB", "REDIS_URL", "ALLOWED_ORIGINS",
	"REMOTE_CLASSIFY_TIMEOUT_SEC",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg := FromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "facebook/bart-large-mnli", cfg.HFZeroShotModel)
	assert.Equal(t, "google/flan-t5-base", cfg.HFGenerationModel)
	assert.Equal(t, 45*time.Second, cfg.RemoteClassifyTimeout)
	assert.Equal(t, 60*time.Second, cfg.RemoteGenerateTimeout)
	assert.Equal(t, 120, cfg.ReplyMaxTokens)
	assert.InDelta(t, 0.2, cfg.ReplyTemperature, 1e-9)
	assert.Equal(t, 4, cfg.BatchConcurrency)
	assert.Equal(t, 10<<20, cfg.MaxUploadBytes())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, domain.ModeLocal, cfg.Mode())
}

func TestMode(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want domain.OperatingMode
	}{
		{name: "remote with token", env: map[string]string{"USE_REMOTE": "true", "HF_TOKEN": "hf_x"}, want: domain.ModeRemote},
		{name: "legacy flag", env: map[string]string{"USE_HF": "1", "HF_TOKEN": "hf_x"}, want: domain.ModeRemote},
		{name: "remote without token", env: map[string]string{"USE_REMOTE": "1"}, want: domain.ModeLocal},
		{name: "token without flag", env: map[string]string{"HF_TOKEN": "hf_x"}, want: domain.ModeLocal},
		{name: "explicit off wins over legacy", env: map[string]string{"USE_REMOTE": "0", "USE_HF": "1", "HF_TOKEN": "hf_x"}, want: domain.ModeLocal},
		{name: "garbage flag", env: map[string]string{"USE_REMOTE": "yes please", "HF_TOKEN": "hf_x"}, want: domain.ModeLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, FromEnv().Mode())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown env", env: map[string]string{"ENV": "staging"}},
		{name: "unknown backend", env: map[string]string{"GENERATOR_BACKEND": "claude"}},
		{name: "openai without key", env: map[string]string{"GENERATOR_BACKEND": "openai"}},
		{name: "zero concurrency", env: map[string]string{"BATCH_CONCURRENCY": "0"}},
		{name: "bad hf url", env: map[string]string{"HF_API_URL": "not a url"}},
		{name: "temperature too high", env: map[string]string{"REPLY_TEMPERATURE": "3.5"}},
		{name: "zero temperature", env: map[string]string{"REPLY_TEMPERATURE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Error(t, FromEnv().Validate())
		})
	}
}

func TestEnvParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REPLY_MAX_TOKENS", "not-a-number")
	t.Setenv("REMOTE_CLASSIFY_TIMEOUT_SEC", "5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := FromEnv()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 120, cfg.ReplyMaxTokens)
	assert.Equal(t, 5*time.Second, cfg.RemoteClassifyTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}
