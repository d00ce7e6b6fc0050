package pdf

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"pdfhub/internal/config"
	"pdfhub/internal/domain"
)

// paperSizes maps page format names to dimensions in inches.
var paperSizes = map[string]struct{ Width, Height float64 }{
	"A3":      {11.69, 16.54},
	"A4":      {8.27, 11.69},
	"A5":      {5.83, 8.27},
	"LETTER":  {8.5, 11},
	"LEGAL":   {8.5, 14},
	"TABLOID": {11, 17},
}

// ChromeEngine launches one headless Chrome process per session via chromedp.
type ChromeEngine struct {
	cfg config.Config
}

// NewChromeEngine creates a ChromeEngine from the process configuration.
func NewChromeEngine(cfg config.Config) *ChromeEngine {
	return &ChromeEngine{cfg: cfg}
}

// Launch starts an isolated Chrome instance with its own profile directory
// and a single tab, and enables network tracking for the idle wait.
func (e *ChromeEngine) Launch(ctx context.Context) (Session, error) {
	tmpDir, err := os.MkdirTemp("", "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("%w: cannot create profile dir", domain.ErrLaunchFailed)
	}

	allocatorOptions := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(tmpDir),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal
		// container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if e.cfg.Engine.ChromePath != "" {
		allocatorOptions = append(allocatorOptions, chromedp.ExecPath(e.cfg.Engine.ChromePath))
	}
	if e.cfg.Engine.ChromeNoSandbox {
		allocatorOptions = append(allocatorOptions, chromedp.Flag("no-sandbox", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		profileDir:  tmpDir,
		inflight:    make(map[network.RequestID]struct{}),
	}
	chromedp.ListenTarget(tabCtx, s.onNetworkEvent)

	// Start the browser process now so launch failures surface here rather
	// than on the first navigation.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrLaunchFailed, err)
	}
	return s, nil
}

// chromeSession is one Chrome instance plus one tab. It tracks in-flight
// network requests to implement the network-idle wait.
type chromeSession struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	profileDir  string

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	docStatus    int64
	closed       bool
}

func (s *chromeSession) onNetworkEvent(ev any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.inflight[e.RequestID] = struct{}{}
		s.lastActivity = time.Now()
	case *network.EventLoadingFinished:
		delete(s.inflight, e.RequestID)
		s.lastActivity = time.Now()
	case *network.EventLoadingFailed:
		delete(s.inflight, e.RequestID)
		s.lastActivity = time.Now()
	case *network.EventResponseReceived:
		if e.Type == network.ResourceTypeDocument && s.docStatus == 0 && e.Response != nil {
			s.docStatus = e.Response.Status
		}
	}
}

func (s *chromeSession) markActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *chromeSession) documentStatus() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docStatus
}

func (s *chromeSession) idleFor(quiet time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) == 0 && time.Since(s.lastActivity) >= quiet
}

// Navigate loads the URL as the root document and checks the document
// response status.
func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.markActivity()
	if err := chromedp.Run(s.tabCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNavigationFailed, err)
	}
	if status := s.documentStatus(); status >= 400 {
		return fmt.Errorf("%w: document responded with status %d", domain.ErrNavigationFailed, status)
	}
	return nil
}

// SetContent installs raw HTML into the page without a network fetch of the
// root document. Subordinate resources referenced by the markup may still
// load over the network.
func (s *chromeSession) SetContent(ctx context.Context, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.markActivity()
	err := chromedp.Run(s.tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNavigationFailed, err)
	}
	return nil
}

// WaitIdle blocks until no request has been in flight for the quiescence
// window, or the context expires.
func (s *chromeSession) WaitIdle(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrRenderTimeout, ctx.Err())
		case <-s.tabCtx.Done():
			return fmt.Errorf("%w: %v", domain.ErrRenderTimeout, s.tabCtx.Err())
		case <-ticker.C:
			if s.idleFor(quiet) {
				return nil
			}
		}
	}
}

// PrintToPDF renders the current page with the resolved options.
func (s *chromeSession) PrintToPDF(ctx context.Context, opts RenderOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params, err := printParams(opts)
	if err != nil {
		return nil, err
	}
	var pdfBuf []byte
	err = chromedp.Run(s.tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := params.Do(ctx)
		pdfBuf = buf
		return err
	}))
	if err != nil {
		return nil, err
	}
	return pdfBuf, nil
}

// Close tears down the tab, the browser process and the profile directory.
// It is safe to call more than once.
func (s *chromeSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.tabCtx)
	s.tabCancel()
	s.allocCancel()
	if s.profileDir != "" {
		_ = os.RemoveAll(s.profileDir)
	}
	return err
}

// printParams maps the resolved option set onto Chrome's PrintToPDF call.
// Recognized keys with unusable values are rejected; keys outside Chrome's
// print surface are ignored.
func printParams(opts RenderOptions) (*page.PrintToPDFParams, error) {
	params := page.PrintToPDF()

	if v, ok := opts.Get("format"); ok {
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: format must be a string, got %T", domain.ErrEngineRejectedOptions, v)
		}
		paper, ok := paperSizes[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown page format %q", domain.ErrEngineRejectedOptions, name)
		}
		params = params.WithPaperWidth(paper.Width).WithPaperHeight(paper.Height)
	}

	if v, ok := opts.Get("margin"); ok {
		sides, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: margin must be an object, got %T", domain.ErrEngineRejectedOptions, v)
		}
		apply := map[string]func(float64) *page.PrintToPDFParams{
			"top":    params.WithMarginTop,
			"right":  params.WithMarginRight,
			"bottom": params.WithMarginBottom,
			"left":   params.WithMarginLeft,
		}
		for side, raw := range sides {
			fn, ok := apply[side]
			if !ok {
				return nil, fmt.Errorf("%w: unknown margin side %q", domain.ErrEngineRejectedOptions, side)
			}
			inches, err := parseLength(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: margin %s: %v", domain.ErrEngineRejectedOptions, side, err)
			}
			params = fn(inches)
		}
	}

	if v, ok := opts.Get("print_background"); ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: print_background must be a boolean", domain.ErrEngineRejectedOptions)
		}
		params = params.WithPrintBackground(b)
	}

	if v, ok := opts.Get("prefer_css_page_size"); ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: prefer_css_page_size must be a boolean", domain.ErrEngineRejectedOptions)
		}
		params = params.WithPreferCSSPageSize(b)
	}

	if v, ok := opts.Get("landscape"); ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: landscape must be a boolean", domain.ErrEngineRejectedOptions)
		}
		params = params.WithLandscape(b)
	}

	if v, ok := opts.Get("scale"); ok {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%w: scale: %v", domain.ErrEngineRejectedOptions, err)
		}
		params = params.WithScale(f)
	}

	if v, ok := opts.Get("page_ranges"); ok {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: page_ranges must be a string", domain.ErrEngineRejectedOptions)
		}
		params = params.WithPageRanges(str)
	}

	if v, ok := opts.Get("display_header_footer"); ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: display_header_footer must be a boolean", domain.ErrEngineRejectedOptions)
		}
		params = params.WithDisplayHeaderFooter(b)
	}
	if v, ok := opts.Get("header_template"); ok {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: header_template must be a string", domain.ErrEngineRejectedOptions)
		}
		params = params.WithHeaderTemplate(str)
	}
	if v, ok := opts.Get("footer_template"); ok {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: footer_template must be a string", domain.ErrEngineRejectedOptions)
		}
		params = params.WithFooterTemplate(str)
	}

	if v, ok := opts.Get("width"); ok {
		inches, err := parseLength(v)
		if err != nil {
			return nil, fmt.Errorf("%w: width: %v", domain.ErrEngineRejectedOptions, err)
		}
		params = params.WithPaperWidth(inches)
	}
	if v, ok := opts.Get("height"); ok {
		inches, err := parseLength(v)
		if err != nil {
			return nil, fmt.Errorf("%w: height: %v", domain.ErrEngineRejectedOptions, err)
		}
		params = params.WithPaperHeight(inches)
	}

	return params, nil
}

// parseLength converts a CSS-ish length value into inches. Strings accept
// cm, mm, in and px suffixes; bare numbers are pixels at 96 dpi.
func parseLength(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		str := strings.TrimSpace(val)
		unit := "px"
		for _, u := range []string{"cm", "mm", "in", "px"} {
			if strings.HasSuffix(str, u) {
				unit = u
				str = strings.TrimSuffix(str, u)
				break
			}
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid length %q", val)
		}
		switch unit {
		case "cm":
			return n / 2.54, nil
		case "mm":
			return n / 25.4, nil
		case "in":
			return n, nil
		default:
			return n / 96, nil
		}
	default:
		n, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("invalid length %v", v)
		}
		return n / 96, nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
