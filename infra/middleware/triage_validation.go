package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"triage_server/pkg/apperr"
)

// RequireContentType rejects requests whose media type is not one of allowed.
func RequireContentType(allowed ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		ct := strings.ToLower(strings.TrimSpace(strings.SplitN(c.Get(fiber.HeaderContentType), ";", 2)[0]))
		for _, a := range allowed {
			if ct == a {
				return c.Next()
			}
		}
		return apperr.InvalidRequest("unsupported content type").
			WithDetail("content_type", ct).
			WithDetail("allowed", allowed)
	}
}
