package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	neturl "net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"pdfhub/internal/config"
	"pdfhub/internal/domain"
	"pdfhub/internal/logging"
	"pdfhub/internal/pdf"
)

// PDFHandler serves the two conversion endpoints.
type PDFHandler struct {
	cfg   config.Config
	conv  *pdf.Converter
	redis *redis.Client
}

// NewPDFHandler creates a PDFHandler over the given converter. The Redis
// client is optional; without it the response cache is disabled.
func NewPDFHandler(cfg config.Config, conv *pdf.Converter, rdb *redis.Client) *PDFHandler {
	return &PDFHandler{cfg: cfg, conv: conv, redis: rdb}
}

type urlRequest struct {
	URL     string         `json:"url"`
	Options map[string]any `json:"options"`
}

type htmlRequest struct {
	HTML    string         `json:"html"`
	Options map[string]any `json:"options"`
}

// HandleURL converts the page at a URL to PDF.
func (h *PDFHandler) HandleURL(c *fiber.Ctx) error {
	var req urlRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if req.URL == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid URL: missing")
	}
	parsed, err := neturl.ParseRequestURI(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid URL: must be HTTP or HTTPS")
	}

	requestID := h.requestID(c)
	return h.respond(c, requestID, "webpage.pdf", req.URL, req.Options, func() ([]byte, error) {
		return h.conv.ConvertURL(req.URL, req.Options, requestID)
	})
}

// HandleHTML converts raw HTML source to PDF.
func (h *PDFHandler) HandleHTML(c *fiber.Ctx) error {
	var req htmlRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if req.HTML == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid HTML: missing")
	}
	if len(req.HTML) > h.cfg.Limits.MaxHTMLBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "HTML input exceeds allowed size")
	}

	requestID := h.requestID(c)
	return h.respond(c, requestID, "document.pdf", req.HTML, req.Options, func() ([]byte, error) {
		return h.conv.ConvertHTML(req.HTML, req.Options, requestID)
	})
}

// requestID takes the caller's correlation id when supplied, falling back to
// the id the request-id middleware assigned, then to a fresh one.
func (h *PDFHandler) requestID(c *fiber.Ctx) string {
	if id := c.Get("X-Request-ID"); id != "" {
		return id
	}
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return pdf.EnsureRequestID("")
}

func (h *PDFHandler) respond(c *fiber.Ctx, requestID, filename, source string, options map[string]any, render func() ([]byte, error)) error {
	cacheKey := pdfCacheKey(source, options)

	if cached := h.cachedPDF(c, cacheKey); cached != nil {
		logging.Info("PDF cache hit", "request_id", requestID, "key", cacheKey)
		return h.sendPDF(c, filename, cached)
	}

	pdfBuf, err := render()
	if err != nil {
		var ce *domain.ConversionError
		if !errors.As(err, &ce) {
			ce = &domain.ConversionError{
				Kind:      domain.KindConversionFailed,
				RequestID: requestID,
				Message:   domain.ErrConversionFailed.Error(),
				Err:       err,
			}
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{
				"kind":       ce.Kind,
				"message":    ce.Message,
				"request_id": ce.RequestID,
			},
		})
	}

	if len(pdfBuf) > h.cfg.Limits.MaxPDFBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "PDF exceeds allowed size")
	}

	h.cachePDF(c, cacheKey, pdfBuf)
	return h.sendPDF(c, filename, pdfBuf)
}

func (h *PDFHandler) sendPDF(c *fiber.Ctx, filename string, buf []byte) error {
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+filename)
	return c.Send(buf)
}

// pdfCacheKey derives a stable key from the source and the caller overrides.
func pdfCacheKey(source string, options map[string]any) string {
	hash := sha256.New()
	hash.Write([]byte(source))
	if opts, err := json.Marshal(options); err == nil {
		hash.Write(opts)
	}
	return "pdfcache:" + hex.EncodeToString(hash.Sum(nil))
}

func (h *PDFHandler) cachedPDF(c *fiber.Ctx, key string) []byte {
	if h.redis == nil || !h.cfg.Cache.PDFCacheEnabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Context(), time.Second)
	defer cancel()

	cached, err := h.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err.Error())
		return nil
	}
	return cached
}

func (h *PDFHandler) cachePDF(c *fiber.Ctx, key string, data []byte) {
	if h.redis == nil || !h.cfg.Cache.PDFCacheEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(c.Context(), time.Second)
	defer cancel()

	ttl := h.cfg.Cache.PDFCacheTTL.Std()
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := h.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err.Error())
	}
}
