package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"pdfhub/internal/config"
	"pdfhub/internal/logging"
	"pdfhub/internal/logstore"
	"pdfhub/internal/version"
)

// SystemHandler serves health, info and log-query endpoints.
type SystemHandler struct {
	cfg config.Config
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(cfg config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// HandleHealth reports the service identity and liveness.
func (h *SystemHandler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"service":     version.Service,
		"version":     version.Version,
		"description": version.Description,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

// HandleInfo returns service metadata and the exposed endpoints.
func (h *SystemHandler) HandleInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     version.Service,
		"version":     version.Version,
		"description": version.Description,
		"features": []string{
			"PDF Conversion (URL/HTML)",
			"Request Tracking",
			"Structured Logging",
			"Health Monitoring",
		},
		"endpoints": []string{
			"POST /api/v1/pdf/url",
			"POST /api/v1/pdf/html",
			"GET /api/v1/system/health",
			"GET /api/v1/system/info",
			"GET /api/v1/system/logs",
		},
	})
}

// HandleLogs returns the most recent log lines, optionally filtered by
// request id.
func (h *SystemHandler) HandleLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	filter := c.Query("request_id")

	res, err := logstore.Query(h.cfg.Logger.File, limit, filter)
	if err != nil {
		logging.Error("Failed to read logs", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to read logs")
	}

	body := fiber.Map{
		"logs":              res.Logs,
		"total":             res.Total,
		"limit":             res.Limit,
		"request_id_filter": res.Filter,
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	return c.JSON(body)
}

// HandleRoot returns the service banner.
func (h *SystemHandler) HandleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     version.Service,
		"version":     version.Version,
		"description": version.Description,
		"api_prefix":  "/api/v1",
	})
}
