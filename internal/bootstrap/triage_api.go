package bootstrap

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"triage_server/adapter/in/http"
	"triage_server/config"
	"triage_server/infra/middleware"
	"triage_server/pkg/logger"
)

const (
	// maxFilesPerRequest sizes the body limit relative to the per-file limit.
	maxFilesPerRequest = 10
	requestTimeout     = 3 * time.Minute
)

// NewAPI builds the dependencies and the fiber app. The returned cleanup releases both.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.ParseLevel(cfg.LogLevel)
	logger.Init(logger.Config{
		Level:   logLevel,
		Console: cfg.IsDevelopment(),
		Service: "triage-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app, stop := NewApp(deps)
	return app, func() {
		stop()
		cleanup()
	}, nil
}

// NewApp wires HTTP routes and middleware on top of already built dependencies.
func NewApp(deps *Dependencies) (*fiber.App, func()) {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		AppName:               "email-triage",

		// go-json: faster drop-in for encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		// Per-file size is checked again in the handler.
		BodyLimit: cfg.MaxUploadBytes() * maxFilesPerRequest,

		ReadTimeout:  2 * time.Minute,
		WriteTimeout: requestTimeout, // remote generation can take up to a minute per item
		ServerHeader: "",
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())         // 1. Panic recovery
	app.Use(middleware.RequestID())       // 2. Request ID
	app.Use(middleware.SecurityHeaders()) // 3. Security headers
	app.Use(middleware.RequestLogger())   // 4. Request logging
	app.Use(middleware.NoStore("/api"))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders: "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		MaxAge:        86400,
	}))

	// Health, status page and stats (no auth required)
	var redisChecker http.HealthChecker
	if deps.Redis != nil {
		redisChecker = deps.Limiter
	}
	healthHandler := http.NewHealthHandler(http.HealthDeps{
		Mode:     deps.Mode,
		Redis:    redisChecker,
		Breakers: deps.Breakers,
		Stats:    deps.Stats,
		Model:    deps.LocalClassifier.Info(),
	})
	healthHandler.Register(app)

	if cfg.IsDevelopment() {
		RegisterDevRoutes(app, deps)
		logger.Info("Development routes enabled under /dev")
	}

	// API routes (rate limited, optional auth)
	rateLimiter := middleware.NewRateLimiter(cfg.APIRateLimit, time.Minute)
	api := app.Group("/api")
	api.Use(rateLimiter.Handler())
	api.Use(middleware.JWTAuth(cfg.JWTSecret))

	processHandler := http.NewProcessHandler(deps.TriageService, cfg.MaxUploadBytes()).
		WithTimeout(requestTimeout)
	processHandler.Register(api)

	logger.Info("API server initialized (mode=%s)", deps.Mode)

	return app, rateLimiter.Stop
}
