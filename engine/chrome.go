package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/nsepulse/fiidii/config"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// ChromeEngine launches headless Chrome via chromedp. It runs with
// --disable-http2: the target's edge intermittently resets HTTP/2 streams
// from headless Chrome, and forcing HTTP/1.1 sidesteps that entirely.
type ChromeEngine struct {
	cfg config.BrowserConfig
}

// NewChromeEngine creates the chromedp-backed engine.
func NewChromeEngine(cfg config.BrowserConfig) *ChromeEngine {
	return &ChromeEngine{cfg: cfg}
}

func (e *ChromeEngine) Name() string { return "chrome" }

// NewSession starts a fresh Chrome process with its own profile. Nothing
// is shared with previous sessions; Close kills the process.
func (e *ChromeEngine) NewSession(ctx context.Context) (Session, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.UserAgent(chromeUA),
		chromedp.Flag("disable-http2", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if e.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if e.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if e.cfg.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.BrowserBin))
	}
	if e.cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(e.cfg.Proxy))
	}

	// The allocator hangs off context.Background so the browser's lifetime
	// is owned by Close, not by the caller's per-attempt context.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}

	// Start the process and enable network events for WaitQuiet.
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("chrome: launch: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// run executes chromedp actions against the session browser while honoring
// the caller's deadline and cancellation.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var dlCancel context.CancelFunc
		runCtx, dlCancel = context.WithDeadline(runCtx, dl)
		defer dlCancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("chrome: navigate %s: %w", url, err)
	}
	return nil
}

// WaitQuiet tracks in-flight requests via CDP network events and returns
// once none have been active for a settle window, or when the budget
// expires. Expiry is reported but callers treat it as advisory.
func (s *chromeSession) WaitQuiet(ctx context.Context, timeout time.Duration) error {
	const settle = 500 * time.Millisecond

	qctx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	var mu sync.Mutex
	inflight := make(map[network.RequestID]struct{})
	lastActivity := time.Now()

	chromedp.ListenTarget(qctx, func(ev interface{}) {
		mu.Lock()
		defer mu.Unlock()
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			inflight[e.RequestID] = struct{}{}
			lastActivity = time.Now()
		case *network.EventLoadingFinished:
			delete(inflight, e.RequestID)
			lastActivity = time.Now()
		case *network.EventLoadingFailed:
			delete(inflight, e.RequestID)
			lastActivity = time.Now()
		}
	})

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-qctx.Done():
			return fmt.Errorf("chrome: network quiescence: %w", qctx.Err())
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			mu.Lock()
			idle := len(inflight) == 0 && time.Since(lastActivity) >= settle
			mu.Unlock()
			if idle {
				return nil
			}
		}
	}
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("chrome: snapshot: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Scroll(ctx context.Context) error {
	return s.run(ctx, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil))
}

func (s *chromeSession) Press(ctx context.Context, key Key) error {
	var seq string
	switch key {
	case KeyEnd:
		seq = kb.End
	case KeyHome:
		seq = kb.Home
	default:
		return fmt.Errorf("chrome: unsupported key %q", key)
	}
	return s.run(ctx, chromedp.KeyEvent(seq))
}

// Close tears down the tab, browser and allocator. Safe to call more than
// once; cancelling the contexts kills the Chrome process.
func (s *chromeSession) Close() error {
	s.browserCancel()
	s.allocCancel()
	return nil
}
