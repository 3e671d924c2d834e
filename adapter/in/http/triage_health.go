package http

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2"

	"triage_server/core/domain"
	"triage_server/pkg/metrics"
	"triage_server/pkg/resilience"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the status page, liveness, readiness and stats endpoints.
type HealthHandler struct {
	mode      domain.OperatingMode
	redis     HealthChecker        // optional
	breakers  *resilience.Registry // optional
	stats     *metrics.Registry    // optional
	model     any
	startedAt time.Time
}

// HealthDeps holds dependencies for the health handler.
type HealthDeps struct {
	Mode     domain.OperatingMode
	Redis    HealthChecker
	Breakers *resilience.Registry
	Stats    *metrics.Registry
	Model    any // serialised as-is in /api/stats
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{
		mode:      deps.Mode,
		redis:     deps.Redis,
		breakers:  deps.Breakers,
		stats:     deps.Stats,
		model:     deps.Model,
		startedAt: time.Now(),
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/", h.Status)
	app.Get("/api/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/api/stats", h.Stats)
}

var statusPage = template.Must(template.New("status").Parse(`<!doctype html>
<html>
  <head><meta charset="utf-8"><title>Email Triage API</title></head>
  <body style="font-family: sans-serif; max-width: 720px; margin: 40px auto;">
    <h1>Email Triage API</h1>
    <p>API online. Modo: <strong>{{.Mode}}</strong></p>
    <ul>
      <li><a href="/api/health">/api/health</a></li>
      <li><a href="/api/stats">/api/stats</a></li>
      <li><a href="/ready">/ready</a></li>
    </ul>
  </body>
</html>
`))

// Status renders a small HTML page with the operating mode.
func (h *HealthHandler) Status(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := statusPage.Execute(&buf, map[string]any{"Mode": h.mode}); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"mode":      h.mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	// Open breakers degrade remote mode to local answers; report them without failing.
	if h.breakers != nil {
		for _, b := range h.breakers.Stats() {
			checks["breaker:"+b.Name] = b.State
		}
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"mode":      h.mode,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats reports decision latency per source, breaker counters and the local model.
func (h *HealthHandler) Stats(c *fiber.Ctx) error {
	latency := make(map[string]map[string]any)
	if h.stats != nil {
		for source, s := range h.stats.AllStats() {
			latency[source] = s.ToMap()
		}
	}

	var breakers []resilience.BreakerStats
	if h.breakers != nil {
		breakers = h.breakers.Stats()
	}

	return c.JSON(fiber.Map{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"latency":        latency,
		"breakers":       breakers,
		"model":          h.model,
	})
}
