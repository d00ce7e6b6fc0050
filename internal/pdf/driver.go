package pdf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdfhub/internal/domain"
	"pdfhub/internal/logging"
)

// Source is the content to render: exactly one of URL or HTML is set.
type Source struct {
	URL  string
	HTML string
}

// IsURL reports whether the source is a URL navigation.
func (s Source) IsURL() bool { return s.URL != "" }

// Summary is a short, log-safe description of the source.
func (s Source) Summary() string {
	if s.IsURL() {
		return s.URL
	}
	return fmt.Sprintf("inline html (%d bytes)", len(s.HTML))
}

// Driver owns one engine session end-to-end for a single conversion:
// launch, content load, network-idle wait, PDF render and guaranteed
// teardown.
type Driver struct {
	engine     Engine
	idleWindow time.Duration
}

// NewDriver creates a Driver over the given engine. idleWindow is the
// network quiescence window the page must satisfy before rendering.
func NewDriver(engine Engine, idleWindow time.Duration) *Driver {
	if idleWindow <= 0 {
		idleWindow = 500 * time.Millisecond
	}
	return &Driver{engine: engine, idleWindow: idleWindow}
}

// Render drives one session through its full lifecycle and returns the PDF
// bytes. Teardown runs unconditionally, and a teardown failure is logged but
// never masks the outcome of the preceding steps: if rendering succeeded,
// the caller still receives the bytes.
func (d *Driver) Render(ctx context.Context, src Source, opts RenderOptions, requestID string) ([]byte, error) {
	logging.Info("Launching browser", "request_id", requestID)
	sess, err := d.engine.Launch(ctx)
	if err != nil {
		return nil, classify(err, domain.ErrLaunchFailed)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logging.Warn("Browser teardown failed", "request_id", requestID, "error", err.Error())
			return
		}
		logging.Info("Browser closed", "request_id", requestID)
	}()
	logging.Info("Browser launched", "request_id", requestID)

	if src.IsURL() {
		logging.Info("Navigating to URL", "request_id", requestID, "url", src.URL)
		err = sess.Navigate(ctx, src.URL)
	} else {
		logging.Info("Setting HTML content", "request_id", requestID, "html_length", len(src.HTML))
		err = sess.SetContent(ctx, src.HTML)
	}
	if err != nil {
		return nil, classify(err, domain.ErrNavigationFailed)
	}
	logging.Info("Content loaded", "request_id", requestID)

	logging.Info("Waiting for network idle", "request_id", requestID, "idle_window_ms", d.idleWindow.Milliseconds())
	if err := sess.WaitIdle(ctx, d.idleWindow); err != nil {
		return nil, classify(err, domain.ErrRenderTimeout)
	}
	logging.Info("Page settled", "request_id", requestID)

	logging.Info("Generating PDF", "request_id", requestID)
	pdfBuf, err := sess.PrintToPDF(ctx, opts)
	if err != nil {
		return nil, classify(err, domain.ErrConversionFailed)
	}
	logging.Info("PDF rendered", "request_id", requestID, "pdf_size", len(pdfBuf))

	return pdfBuf, nil
}

// classify tags err with a failure kind. Errors already carrying a kind pass
// through; context deadlines become render timeouts; anything else gets the
// step's fallback kind.
func classify(err error, fallback error) error {
	if domain.IsClassified(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrRenderTimeout, err)
	}
	return fmt.Errorf("%w: %v", fallback, err)
}
