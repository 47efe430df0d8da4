package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-stream/internal/stream"
)

// ReadinessCheck is a named dependency probe for /health/ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RegisterHealthRoutes wires liveness, readiness and Prometheus endpoints.
func RegisterHealthRoutes(app *fiber.App, manager *stream.Manager, checks ...ReadinessCheck) {
	app.Get("/health", func(c *fiber.Ctx) error {
		st := manager.Status()
		return c.JSON(fiber.Map{
			"status":             "ok",
			"service":            serviceName,
			"active_connections": st.ActiveConnections,
		})
	})

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "alive"})
	})

	app.Get("/health/ready", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		failures := fiber.Map{}
		if !manager.Running() {
			failures["stream_manager"] = "not running"
		}
		for _, chk := range checks {
			if err := chk.Check(ctx); err != nil {
				failures[chk.Name] = err.Error()
			}
		}

		if len(failures) > 0 {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":   "not_ready",
				"failures": failures,
			})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
