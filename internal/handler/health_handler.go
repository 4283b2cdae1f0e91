package handler

import "github.com/gofiber/fiber/v2"

// Health reports liveness and the partitions hosted by this process.
// GET /healthz
func Health(partitionIDs []int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "partitions": partitionIDs})
	}
}
