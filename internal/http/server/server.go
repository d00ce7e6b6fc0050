// Package server assembles the Fiber application: middleware, routes and the
// JSON error surface.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"pdfhub/internal/auth"
	"pdfhub/internal/config"
	"pdfhub/internal/http/handlers"
	"pdfhub/internal/http/middleware"
	"pdfhub/internal/logging"
	"pdfhub/internal/pdf"
)

// Deps holds the explicit dependencies of the HTTP app. Engine and Redis are
// optional: a nil Engine means headless Chrome, a nil Redis disables caching.
type Deps struct {
	Config config.Config
	Redis  *redis.Client
	Tokens *auth.Store
	Engine pdf.Engine
}

// New creates and configures the Fiber app.
func New(d Deps) *fiber.App {
	if d.Engine == nil {
		d.Engine = pdf.NewChromeEngine(d.Config)
	}

	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	middleware.Register(app, middleware.Options{Config: d.Config, Tokens: d.Tokens})

	conv := pdf.NewConverter(d.Config, d.Engine)
	pdfHandler := handlers.NewPDFHandler(d.Config, conv, d.Redis)
	systemHandler := handlers.NewSystemHandler(d.Config)

	app.Get("/", systemHandler.HandleRoot)

	v1 := app.Group("/api/v1")
	v1.Post("/pdf/url", pdfHandler.HandleURL)
	v1.Post("/pdf/html", pdfHandler.HandleHTML)
	v1.Get("/system/health", systemHandler.HandleHealth)
	v1.Get("/system/info", systemHandler.HandleInfo)
	v1.Get("/system/logs", systemHandler.HandleLogs)
	v1.Get("/monitor", monitor.New())

	// Ensure all responses, including 404s, return JSON.
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}
