package middleware

import (
	common_models "go-catalog/internal/common/models"

	"github.com/gofiber/fiber/v2"
)

// ActorMiddleware extracts the caller identity from the X-Actor-ID header
// and injects it into the request context. Import sessions are bound to the
// actor that created them; write endpoints compare against this value.
func ActorMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := c.Get("X-Actor-ID")
		if actor == "" {
			actor = "anonymous"
		}
		c.Locals(common_models.ActorIDKey, actor)
		return c.Next()
	}
}

// ActorFromCtx reads the identity injected by ActorMiddleware.
func ActorFromCtx(c *fiber.Ctx) string {
	if actor, ok := c.Locals(common_models.ActorIDKey).(string); ok {
		return actor
	}
	return "anonymous"
}
