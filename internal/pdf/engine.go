package pdf

import (
	"context"
	"time"
)

// Engine starts isolated browser sessions. The production implementation
// drives headless Chrome; tests substitute a stub.
type Engine interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one live browser instance with a single page. It exists for the
// duration of one conversion and must be closed exactly once.
type Session interface {
	// Navigate loads the given URL as the page's root document.
	Navigate(ctx context.Context, url string) error
	// SetContent installs raw HTML as the page content without fetching a
	// root document over the network.
	SetContent(ctx context.Context, html string) error
	// WaitIdle blocks until the page has had no in-flight network requests
	// for the given quiescence window.
	WaitIdle(ctx context.Context, quiet time.Duration) error
	// PrintToPDF renders the current page with the resolved options.
	PrintToPDF(ctx context.Context, opts RenderOptions) ([]byte, error)
	// Close releases the page and the browser instance.
	Close() error
}
