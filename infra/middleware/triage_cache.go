package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// NoStore marks responses under prefix as uncacheable.
func NoStore(prefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if strings.HasPrefix(c.Path(), prefix) {
			c.Set(fiber.HeaderCacheControl, "no-store")
		}
		return err
	}
}
