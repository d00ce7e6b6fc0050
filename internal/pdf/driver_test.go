package pdf

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pdfhub/internal/domain"
	"pdfhub/internal/logging"
)

// stubSession records the engine calls a conversion makes and can inject a
// failure at any step.
type stubSession struct {
	mu         sync.Mutex
	navigated  []string
	setContent int
	waited     int
	printed    int
	closes     int

	navErr   error
	setErr   error
	idleErr  error
	printErr error
	closeErr error
	pdf      []byte
}

func (s *stubSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	s.navigated = append(s.navigated, url)
	s.mu.Unlock()
	return s.navErr
}

func (s *stubSession) SetContent(_ context.Context, _ string) error {
	s.mu.Lock()
	s.setContent++
	s.mu.Unlock()
	return s.setErr
}

func (s *stubSession) WaitIdle(_ context.Context, _ time.Duration) error {
	s.mu.Lock()
	s.waited++
	s.mu.Unlock()
	return s.idleErr
}

func (s *stubSession) PrintToPDF(_ context.Context, _ RenderOptions) ([]byte, error) {
	s.mu.Lock()
	s.printed++
	s.mu.Unlock()
	if s.printErr != nil {
		return nil, s.printErr
	}
	if s.pdf != nil {
		return s.pdf, nil
	}
	return []byte("%PDF-1.4 stub"), nil
}

func (s *stubSession) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return s.closeErr
}

type stubEngine struct {
	launchErr error
	session   *stubSession
	launches  int
}

func (e *stubEngine) Launch(context.Context) (Session, error) {
	e.launches++
	if e.launchErr != nil {
		return nil, e.launchErr
	}
	if e.session == nil {
		e.session = &stubSession{}
	}
	return e.session, nil
}

func quietLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.SetLoggerForTest(zerolog.New(&buf).With().Timestamp().Logger())
	return &buf
}

func TestRender_URLSuccess(t *testing.T) {
	quietLogs(t)
	eng := &stubEngine{}
	d := NewDriver(eng, 10*time.Millisecond)

	buf, err := d.Render(context.Background(), Source{URL: "https://example.com"}, Resolve(defaults(), nil), "req-url")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !bytes.HasPrefix(buf, []byte("%PDF")) {
		t.Fatalf("expected PDF signature, got %q", buf[:4])
	}
	s := eng.session
	if len(s.navigated) != 1 || s.navigated[0] != "https://example.com" {
		t.Fatalf("expected one navigation, got %v", s.navigated)
	}
	if s.setContent != 0 {
		t.Fatalf("URL source must not set content")
	}
	if s.closes != 1 {
		t.Fatalf("expected exactly one close, got %d", s.closes)
	}
}

func TestRender_HTMLNeverNavigates(t *testing.T) {
	quietLogs(t)
	eng := &stubEngine{}
	d := NewDriver(eng, 10*time.Millisecond)

	if _, err := d.Render(context.Background(), Source{HTML: "<p>hi</p>"}, Resolve(defaults(), nil), "req-html"); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	s := eng.session
	if len(s.navigated) != 0 {
		t.Fatalf("HTML source must not navigate, got %v", s.navigated)
	}
	if s.setContent != 1 {
		t.Fatalf("expected one SetContent call, got %d", s.setContent)
	}
}

func TestRender_LaunchFailure(t *testing.T) {
	quietLogs(t)
	eng := &stubEngine{launchErr: errors.New("no chrome binary")}
	d := NewDriver(eng, 10*time.Millisecond)

	_, err := d.Render(context.Background(), Source{URL: "https://example.com"}, Resolve(defaults(), nil), "req-launch")
	if !errors.Is(err, domain.ErrLaunchFailed) {
		t.Fatalf("expected LaunchFailed, got %v", err)
	}
}

func TestRender_TeardownAlwaysRunsOnStepFailure(t *testing.T) {
	quietLogs(t)
	tests := []struct {
		name     string
		mutate   func(*stubSession)
		wantKind error
	}{
		{
			name:     "navigate fails",
			mutate:   func(s *stubSession) { s.navErr = errors.New("dns failure") },
			wantKind: domain.ErrNavigationFailed,
		},
		{
			name:     "idle wait fails",
			mutate:   func(s *stubSession) { s.idleErr = context.DeadlineExceeded },
			wantKind: domain.ErrRenderTimeout,
		},
		{
			name:     "print fails",
			mutate:   func(s *stubSession) { s.printErr = errors.New("printing broke") },
			wantKind: domain.ErrConversionFailed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess := &stubSession{}
			tc.mutate(sess)
			eng := &stubEngine{session: sess}
			d := NewDriver(eng, 10*time.Millisecond)

			_, err := d.Render(context.Background(), Source{URL: "https://example.com"}, Resolve(defaults(), nil), "req-fail")
			if !errors.Is(err, tc.wantKind) {
				t.Fatalf("expected %v, got %v", tc.wantKind, err)
			}
			if sess.closes != 1 {
				t.Fatalf("expected exactly one close, got %d", sess.closes)
			}
		})
	}
}

func TestRender_ClassifiedEngineErrorPassesThrough(t *testing.T) {
	quietLogs(t)
	sess := &stubSession{printErr: domain.ErrEngineRejectedOptions}
	eng := &stubEngine{session: sess}
	d := NewDriver(eng, 10*time.Millisecond)

	_, err := d.Render(context.Background(), Source{HTML: "<p>x</p>"}, Resolve(defaults(), nil), "req-opts")
	if !errors.Is(err, domain.ErrEngineRejectedOptions) {
		t.Fatalf("expected EngineRejectedOptions to pass through, got %v", err)
	}
}

func TestRender_TeardownErrorNeverMasksSuccess(t *testing.T) {
	buf := quietLogs(t)
	sess := &stubSession{closeErr: errors.New("browser already gone")}
	eng := &stubEngine{session: sess}
	d := NewDriver(eng, 10*time.Millisecond)

	pdfBuf, err := d.Render(context.Background(), Source{HTML: "<p>x</p>"}, Resolve(defaults(), nil), "req-close")
	if err != nil {
		t.Fatalf("teardown error must not mask success, got %v", err)
	}
	if len(pdfBuf) == 0 {
		t.Fatalf("expected PDF bytes despite teardown failure")
	}
	if !bytes.Contains(buf.Bytes(), []byte("Browser teardown failed")) {
		t.Fatalf("expected teardown failure to be logged")
	}
}
