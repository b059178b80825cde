package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"outfit2pdf/internal/handlers"
	"outfit2pdf/internal/images"
	u "outfit2pdf/internal/utils"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, redis *redis.Client, remover images.BackgroundRemover) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, redis, remover)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, redis *redis.Client, remover images.BackgroundRemover) {
	v1 := app.Group("/v1")

	// One shared service instance so every catalog route shares the same
	// Chrome pool and background remover.
	svc := handlers.NewCatalogService(cfg, redis, remover)

	v1.Post("/catalog", svc.HandleGenerate)
	v1.Get("/", svc.HandleInfo)
	v1.Get("/chrome/stats", svc.HandleChromeStats)

	v1.Get("/monitor", monitor.New())
}
