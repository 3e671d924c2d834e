package bootstrap

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

type devDecideRequest struct {
	Text string `json:"text"`
}

// RegisterDevRoutes registers development-only debugging routes without authentication.
// WARNING: Only enable in development environment!
func RegisterDevRoutes(app *fiber.App, deps *Dependencies) {
	dev := app.Group("/dev")

	// Full decision for one text, including which path produced it.
	dev.Post("/decide", func(c *fiber.Ctx) error {
		var req devDecideRequest
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("body must be JSON {\"text\": \"...\"}").WithError(err)
		}
		if strings.TrimSpace(req.Text) == "" {
			return apperr.InvalidRequest("text is required")
		}

		result := deps.TriageService.Decide(c.UserContext(), req.Text)
		logger.Info("[Dev] decide: source=%s category=%s confidence=%.3f", result.Source, result.Category, result.Confidence)

		return c.JSON(fiber.Map{
			"category":      result.Category,
			"confidence":    result.Confidence,
			"reply":         result.Reply,
			"source":        result.Source,
			"mode":          deps.Mode,
			"probabilities": deps.LocalClassifier.Probabilities(req.Text),
		})
	})
}
