package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"triage_server/core/domain"
)

const (
	GeneratorHF     = "hf"
	GeneratorOpenAI = "openai"
)

type Config struct {
	Port        string `validate:"required,numeric"`
	Environment string `validate:"oneof=development production test"`
	LogLevel    string `validate:"oneof=debug info warn warning error fatal"`

	// Remote inference
	UseRemote             bool
	HFToken               string
	HFAPIURL              string        `validate:"required,url"`
	HFZeroShotModel       string        `validate:"required"`
	HFGenerationModel     string        `validate:"required"`
	RemoteClassifyTimeout time.Duration `validate:"gt=0"`
	RemoteGenerateTimeout time.Duration `validate:"gt=0"`

	// Reply generation
	GeneratorBackend string `validate:"oneof=hf openai"`
	OpenAIAPIKey     string `validate:"required_if=GeneratorBackend openai"`
	OpenAIBaseURL    string `validate:"omitempty,url"`
	OpenAIModel      string
	ReplyMaxTokens   int     `validate:"gt=0,lte=1024"`
	ReplyTemperature float64 `validate:"gt=0,lte=2"`

	// Processing
	BatchConcurrency int `validate:"gt=0,lte=64"`
	MaxUploadMB      int `validate:"gt=0,lte=100"`

	// Redis (outbound rate limit, optional)
	RedisURL         string        `validate:"omitempty,url"`
	RemoteRatePerSec int           `validate:"gte=0"`
	RemoteBurst      int           `validate:"gte=0"`
	ScoreCacheTTL    time.Duration `validate:"gte=0"` // 0 disables the zero-shot score cache

	// HTTP
	AllowedOrigins []string
	APIRateLimit   int    `validate:"gte=0"` // requests per minute per IP, 0 disables
	JWTSecret      string // empty disables auth
}

var validate = validator.New()

// Load reads the optional .env file and the environment, then validates the result.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables without validating it.
func FromEnv() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),

		// Remote inference
		UseRemote:             getEnvFlag("USE_REMOTE", getEnvFlag("USE_HF", false)),
		HFToken:               getEnv("HF_TOKEN", ""),
		HFAPIURL:              getEnv("HF_API_URL", "https://api-inference.huggingface.co/models"),
		HFZeroShotModel:       getEnv("HF_ZERO_SHOT_MODEL", "facebook/bart-large-mnli"),
		HFGenerationModel:     getEnv("HF_GENERATION_MODEL", "google/flan-t5-base"),
		RemoteClassifyTimeout: time.Duration(getEnvInt("REMOTE_CLASSIFY_TIMEOUT_SEC", 45)) * time.Second,
		RemoteGenerateTimeout: time.Duration(getEnvInt("REMOTE_GENERATE_TIMEOUT_SEC", 60)) * time.Second,

		// Reply generation
		GeneratorBackend: strings.ToLower(getEnv("GENERATOR_BACKEND", GeneratorHF)),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ReplyMaxTokens:   getEnvInt("REPLY_MAX_TOKENS", 120),
		ReplyTemperature: getEnvFloat("REPLY_TEMPERATURE", 0.2),

		// Processing
		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 4),
		MaxUploadMB:      getEnvInt("MAX_UPLOAD_MB", 10),

		// Redis
		RedisURL:         getEnv("REDIS_URL", ""),
		RemoteRatePerSec: getEnvInt("REMOTE_RATE_PER_SEC", 5),
		RemoteBurst:      getEnvInt("REMOTE_BURST", 5),
		ScoreCacheTTL:    time.Duration(getEnvInt("SCORE_CACHE_TTL_MIN", 60)) * time.Minute,

		// HTTP
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
		APIRateLimit:   getEnvInt("API_RATE_LIMIT", 60),
		JWTSecret:      getEnv("JWT_SECRET", ""),
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Mode resolves the operating mode: remote only when requested and a token is present.
func (c *Config) Mode() domain.OperatingMode {
	return domain.ResolveMode(c.UseRemote, c.HFToken)
}

// MaxUploadBytes returns the per-file upload limit in bytes.
func (c *Config) MaxUploadBytes() int {
	return c.MaxUploadMB << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvFlag accepts "1"/"0" and anything strconv.ParseBool understands.
func getEnvFlag(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
