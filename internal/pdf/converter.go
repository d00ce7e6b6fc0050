package pdf

import (
	"context"
	"time"

	"github.com/rs/xid"

	"pdfhub/internal/config"
	"pdfhub/internal/domain"
	"pdfhub/internal/logging"
)

// EnsureRequestID returns the caller-supplied correlation id when present,
// otherwise a freshly generated one.
func EnsureRequestID(id string) string {
	if id != "" {
		return id
	}
	return xid.New().String()
}

// Converter is the conversion orchestrator: it resolves options, drives one
// render session per request and maps outcomes to either PDF bytes or a
// ConversionError. It performs no retries.
type Converter struct {
	driver   *Driver
	defaults Defaults
	timeout  time.Duration
}

// NewConverter wires a Converter over the given engine using the process
// configuration.
func NewConverter(cfg config.Config, engine Engine) *Converter {
	return &Converter{
		driver:   NewDriver(engine, time.Duration(cfg.Engine.IdleWindowMS)*time.Millisecond),
		defaults: Defaults{Format: cfg.Engine.DefaultFormat, Margin: cfg.Engine.DefaultMargin},
		timeout:  time.Duration(cfg.Engine.TimeoutSecs) * time.Second,
	}
}

// ConvertURL renders the page at url to PDF.
func (c *Converter) ConvertURL(url string, overrides map[string]any, requestID string) ([]byte, error) {
	return c.convert(Source{URL: url}, overrides, requestID, "URL")
}

// ConvertHTML renders raw HTML source to PDF.
func (c *Converter) ConvertHTML(html string, overrides map[string]any, requestID string) ([]byte, error) {
	return c.convert(Source{HTML: html}, overrides, requestID, "HTML")
}

func (c *Converter) convert(src Source, overrides map[string]any, requestID, label string) ([]byte, error) {
	requestID = EnsureRequestID(requestID)
	opts := Resolve(c.defaults, overrides)

	logging.Info("Starting "+label+" to PDF conversion",
		"request_id", requestID,
		"source", src.Summary(),
		"options", opts.Map(),
	)

	// The render is detached from the caller's request context: a client
	// disconnect does not abort a session in flight, it still runs to
	// completion and is torn down normally.
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	pdfBuf, err := c.driver.Render(ctx, src, opts, requestID)
	if err != nil {
		kind := domain.KindOf(err)
		logging.Error("PDF conversion failed",
			"request_id", requestID,
			"kind", kind,
			"error", err.Error(),
		)
		return nil, &domain.ConversionError{
			Kind:      kind,
			RequestID: requestID,
			Message:   safeMessage(err),
			Err:       err,
		}
	}

	logging.Info("PDF generation completed successfully",
		"request_id", requestID,
		"pdf_size", len(pdfBuf),
	)
	return pdfBuf, nil
}

// safeMessage maps an internal error to a caller-facing message without
// leaking engine internals or filesystem paths.
func safeMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindLaunchFailed:
		return domain.ErrLaunchFailed.Error()
	case domain.KindNavigationFailed:
		return domain.ErrNavigationFailed.Error()
	case domain.KindRenderTimeout:
		return domain.ErrRenderTimeout.Error()
	case domain.KindEngineRejectedOptions:
		return domain.ErrEngineRejectedOptions.Error()
	case domain.KindStoreUnavailable:
		return domain.ErrStoreUnavailable.Error()
	default:
		return domain.ErrConversionFailed.Error()
	}
}
