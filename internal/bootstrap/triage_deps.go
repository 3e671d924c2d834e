package bootstrap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"triage_server/adapter/out/extract"
	"triage_server/adapter/out/inference"
	"triage_server/config"
	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/core/service/classification"
	"triage_server/core/service/reply"
	"triage_server/core/service/triage"
	"triage_server/pkg/cache"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"
	"triage_server/pkg/ratelimit"
	"triage_server/pkg/resilience"
)

const latencyWindow = 1000

type Dependencies struct {
	Config *config.Config
	Mode   domain.OperatingMode
	Log    *logger.Logger
	Redis  *redis.Client

	// Resilience / observability
	Limiter  *ratelimit.SlidingWindowLimiter
	Breakers *resilience.Registry
	Stats    *metrics.Registry

	// Inference
	HFClient  *inference.HFClient // nil in local mode
	Generator out.TextGenerator   // nil in local mode

	// Services
	LocalClassifier  *classification.LocalClassifier
	RemoteClassifier *classification.RemoteClassifier
	Composer         *reply.Composer
	Pipeline         *triage.Pipeline
	Extractor        *extract.Extractor
	TriageService    *triage.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	return NewDependenciesWithLogger(cfg, logger.New(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Console: cfg.IsDevelopment(),
		Service: "triage",
	}))
}

// NewDependenciesWithLogger is NewDependencies with a caller-provided logger.
func NewDependenciesWithLogger(cfg *config.Config, log *logger.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config:   cfg,
		Mode:     cfg.Mode(),
		Log:      log,
		Breakers: resilience.NewRegistry(),
		Stats:    metrics.NewRegistry(latencyWindow),
	}
	var cleanups []func()

	if cfg.UseRemote && deps.Mode == domain.ModeLocal {
		log.Warn("USE_REMOTE is set but HF_TOKEN is empty, running in LOCAL mode")
	}

	// Redis (optional, shared outbound budget)
	redisClient, err := ratelimit.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Warn("Redis disabled: %v", err)
	} else if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		pingErr := redisClient.Ping(ctx).Err()
		cancel()
		if pingErr != nil {
			log.Warn("Redis connection failed, outbound limiter disabled: %v", pingErr)
			_ = redisClient.Close()
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
			log.Info("Redis connection successful")
		}
	}
	deps.Limiter = ratelimit.NewSlidingWindowLimiter(deps.Redis, &ratelimit.Config{
		RequestsPerSecond: cfg.RemoteRatePerSec,
		BurstSize:         cfg.RemoteBurst,
		Window:            time.Second,
	})

	// Local model, always present: it is the whole of LOCAL mode and the fallback in REMOTE.
	local, err := classification.NewDefaultLocalClassifier()
	if err != nil {
		return nil, nil, err
	}
	deps.LocalClassifier = local
	info := local.Info()
	log.Info("Local model loaded: version=%s vocabulary=%d", info.Version, info.Vocabulary)

	if deps.Mode == domain.ModeRemote {
		deps.HFClient = inference.NewHFClient(inference.HFConfig{
			BaseURL:           cfg.HFAPIURL,
			Token:             cfg.HFToken,
			ZeroShotModel:     cfg.HFZeroShotModel,
			GenerationModel:   cfg.HFGenerationModel,
			ZeroShotTimeout:   cfg.RemoteClassifyTimeout,
			GenerationTimeout: cfg.RemoteGenerateTimeout,
			Limiter:           deps.Limiter,
			Breakers:          deps.Breakers,
		}, log.Zerolog())

		var zeroShot out.ZeroShotClassifier = deps.HFClient
		if deps.Redis != nil && cfg.ScoreCacheTTL > 0 {
			zeroShot = inference.NewCachedZeroShot(deps.HFClient,
				cache.NewRedisCache(deps.Redis, "triage:zero-shot"), cfg.HFZeroShotModel, cfg.ScoreCacheTTL, log.Zerolog())
			log.Info("Zero-shot score cache enabled (ttl=%s)", cfg.ScoreCacheTTL)
		}

		deps.RemoteClassifier = classification.NewRemoteClassifier(
			zeroShot, local, cfg.RemoteClassifyTimeout, log.Component("remote_classifier"))

		switch cfg.GeneratorBackend {
		case config.GeneratorOpenAI:
			deps.Generator = inference.NewOpenAIGenerator(inference.OpenAIConfig{
				APIKey:   cfg.OpenAIAPIKey,
				BaseURL:  cfg.OpenAIBaseURL,
				Model:    cfg.OpenAIModel,
				Timeout:  cfg.RemoteGenerateTimeout,
				Breakers: deps.Breakers,
			}, log.Zerolog())
		default:
			deps.Generator = deps.HFClient
		}
		log.Info("REMOTE mode: zero-shot=%s generator=%s", cfg.HFZeroShotModel, cfg.GeneratorBackend)
	} else {
		log.Info("LOCAL mode: local model with template replies")
	}

	deps.Composer = reply.NewComposer(deps.Generator, reply.Config{
		Mode:        deps.Mode,
		MaxTokens:   cfg.ReplyMaxTokens,
		Temperature: cfg.ReplyTemperature,
		Timeout:     cfg.RemoteGenerateTimeout,
	}, log.Component("reply_composer"))

	pipelineDeps := triage.PipelineDeps{
		Mode:     deps.Mode,
		Local:    local,
		Composer: deps.Composer,
		Stats:    deps.Stats,
		Logger:   log.Component("pipeline"),
	}
	if deps.RemoteClassifier != nil {
		pipelineDeps.Remote = deps.RemoteClassifier
	}
	deps.Pipeline, err = triage.NewPipeline(pipelineDeps)
	if err != nil {
		return nil, nil, err
	}

	deps.Extractor = extract.New(log.Component("extractor"))
	deps.TriageService = triage.NewService(deps.Pipeline, deps.Extractor, cfg.BatchConcurrency, log.Component("triage_service"))

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

// HealthCheck pings Redis when it is configured.
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
