package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studyquiz-api/database"
	"github.com/sahilchouksey/studyquiz-api/utils/cache"
)

// HealthCheckTimeout bounds each dependency check
const HealthCheckTimeout = 2 * time.Second

// HandleCheckHealth reports database and Redis status. The service is
// unhealthy only when the database is unreachable; Redis is optional.
func HandleCheckHealth(c *fiber.Ctx, store database.Storage, redisCache *cache.RedisCache) error {
	checks := fiber.Map{}
	status, code := "ok", fiber.StatusOK

	if err := store.HealthCheck(); err != nil {
		checks["database"] = "down: " + err.Error()
		status, code = "unavailable", fiber.StatusServiceUnavailable
	} else {
		checks["database"] = "up"
	}

	switch {
	case redisCache == nil:
		checks["redis"] = "disabled"
	default:
		ctx, cancel := context.WithTimeout(c.UserContext(), HealthCheckTimeout)
		defer cancel()
		if err := redisCache.Ping(ctx); err != nil {
			checks["redis"] = "down: " + err.Error()
			if status == "ok" {
				status = "degraded"
			}
		} else {
			checks["redis"] = "up"
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
		"time":   time.Now().UTC(),
	})
}
