package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pdfhub/internal/config"
	"pdfhub/internal/logging"
	"pdfhub/internal/pdf"
)

// fakeSession is a minimal in-memory engine session for handler tests.
type fakeSession struct {
	failWith error
	closes   int
}

func (s *fakeSession) Navigate(context.Context, string) error   { return s.failWith }
func (s *fakeSession) SetContent(context.Context, string) error { return s.failWith }
func (s *fakeSession) WaitIdle(context.Context, time.Duration) error {
	return nil
}
func (s *fakeSession) PrintToPDF(context.Context, pdf.RenderOptions) ([]byte, error) {
	return []byte("%PDF-1.4 fake"), nil
}
func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

type fakeEngine struct {
	session *fakeSession
}

func (e *fakeEngine) Launch(context.Context) (pdf.Session, error) {
	if e.session == nil {
		e.session = &fakeSession{}
	}
	return e.session, nil
}

func testCfg() config.Config {
	var cfg config.Config
	cfg.Engine.TimeoutSecs = 5
	cfg.Engine.IdleWindowMS = 10
	cfg.Engine.DefaultFormat = "A4"
	cfg.Engine.DefaultMargin = "1cm"
	cfg.Limits.MaxHTMLBytes = 1024
	cfg.Limits.MaxPDFBytes = 1024 * 1024
	return cfg
}

func newTestApp(cfg config.Config, engine pdf.Engine, rdb *redis.Client) *fiber.App {
	logging.SetLoggerForTest(zerolog.New(io.Discard))
	conv := pdf.NewConverter(cfg, engine)
	h := NewPDFHandler(cfg, conv, rdb)
	app := fiber.New()
	app.Post("/pdf/url", h.HandleURL)
	app.Post("/pdf/html", h.HandleHTML)
	return app
}

func TestHandleHTML_Success(t *testing.T) {
	app := newTestApp(testCfg(), &fakeEngine{}, nil)

	req := httptest.NewRequest("POST", "/pdf/html", strings.NewReader(`{"html":"<p>hello</p>"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "document.pdf") {
		t.Fatalf("expected document.pdf filename hint, got %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("expected PDF signature, got %q", body)
	}
}

func TestHandleURL_Success(t *testing.T) {
	app := newTestApp(testCfg(), &fakeEngine{}, nil)

	req := httptest.NewRequest("POST", "/pdf/url", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "webpage.pdf") {
		t.Fatalf("expected webpage.pdf filename hint, got %q", cd)
	}
}

func TestHandleURL_Validation(t *testing.T) {
	app := newTestApp(testCfg(), &fakeEngine{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing url", body: `{}`},
		{name: "relative url", body: `{"url":"/nope"}`},
		{name: "bad scheme", body: `{"url":"ftp://example.com"}`},
		{name: "broken json", body: `{`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/pdf/url", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestHandleHTML_Validation(t *testing.T) {
	cfg := testCfg()
	cfg.Limits.MaxHTMLBytes = 16
	app := newTestApp(cfg, &fakeEngine{}, nil)

	missing := httptest.NewRequest("POST", "/pdf/html", strings.NewReader(`{}`))
	missing.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(missing, -1)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for missing html, got %d", resp.StatusCode)
	}

	huge := httptest.NewRequest("POST", "/pdf/html", strings.NewReader(`{"html":"<p>this body is way past the limit</p>"}`))
	huge.Header.Set("Content-Type", "application/json")
	resp2, _ := app.Test(huge, -1)
	if resp2.StatusCode != fiber.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized html, got %d", resp2.StatusCode)
	}
}

func TestHandleHTML_FailurePayload(t *testing.T) {
	eng := &fakeEngine{session: &fakeSession{failWith: errors.New("engine broke")}}
	app := newTestApp(testCfg(), eng, nil)

	req := httptest.NewRequest("POST", "/pdf/html", strings.NewReader(`{"html":"<p>x</p>"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "trace-me")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	var payload struct {
		Error struct {
			Kind      string `json:"kind"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode failure payload: %v", err)
	}
	if payload.Error.Kind != "NavigationFailed" {
		t.Fatalf("expected NavigationFailed kind, got %q", payload.Error.Kind)
	}
	if payload.Error.RequestID != "trace-me" {
		t.Fatalf("expected the caller's request id, got %q", payload.Error.RequestID)
	}
	if strings.Contains(payload.Error.Message, "engine broke") {
		t.Fatalf("failure message must not leak engine internals: %q", payload.Error.Message)
	}
	if eng.session.closes != 1 {
		t.Fatalf("expected exactly one session close, got %d", eng.session.closes)
	}
}

func TestHandleHTML_CacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testCfg()
	cfg.Cache.PDFCacheEnabled = true
	cfg.Cache.PDFCacheTTL = config.Duration(time.Minute)

	eng := &fakeEngine{}
	app := newTestApp(cfg, eng, rdb)

	send := func() int {
		req := httptest.NewRequest("POST", "/pdf/html", strings.NewReader(`{"html":"<p>cache me</p>"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		return resp.StatusCode
	}

	send()
	launchesAfterFirst := eng.session.closes
	send()
	if eng.session.closes != launchesAfterFirst {
		t.Fatalf("second request should be served from cache without a render")
	}
}
