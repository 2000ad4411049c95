package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Header carries the ray id on requests and responses.
const Header = "X-Ray-ID"

// New returns a middleware that assigns every request a ray id for tracing.
// An incoming ray id is kept so ids can propagate across services; otherwise
// a fresh one is generated. The id is stored in Locals("ray_id") where
// logger.WithRayID picks it up, and echoed on the response.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(Header)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals("ray_id", rid)
		c.Set(Header, rid)
		return c.Next()
	}
}
