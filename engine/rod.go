package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/nsepulse/fiidii/config"
)

// RodEngine launches Chromium via go-rod. It is the structural fallback:
// a different automation stack with stealth injection, used when the
// primary engine cannot complete the extraction.
type RodEngine struct {
	cfg config.BrowserConfig
}

// NewRodEngine creates the rod-backed engine.
func NewRodEngine(cfg config.BrowserConfig) *RodEngine {
	return &RodEngine{cfg: cfg}
}

func (e *RodEngine) Name() string { return "rod" }

// NewSession launches a dedicated browser process with one page. The
// stealth script and browser-like headers are installed before any
// navigation so they apply to the first load.
func (e *RodEngine) NewSession(ctx context.Context) (Session, error) {
	l := launcher.New().
		Headless(e.cfg.Headless).
		NoSandbox(e.cfg.NoSandbox)

	if e.cfg.BrowserBin != "" {
		l = l.Bin(e.cfg.BrowserBin)
	}
	if e.cfg.Proxy != "" {
		l = l.Proxy(e.cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("lang"), "en-US")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("rod: launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("rod: connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("rod: create page: %w", err)
	}

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		}),
	}.Call(page)

	return &rodSession{launcher: l, browser: browser, page: page}, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("rod: navigate %s: %w", url, err)
	}
	// Minimal readiness only; full resource load is not required.
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	return nil
}

func (s *rodSession) WaitQuiet(ctx context.Context, timeout time.Duration) error {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	waitIdle := s.page.Context(qctx).WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	waitIdle()
	if qctx.Err() != nil {
		return fmt.Errorf("rod: network quiescence: %w", qctx.Err())
	}
	return nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("rod: snapshot: %w", err)
	}
	return html, nil
}

func (s *rodSession) Scroll(ctx context.Context) error {
	p := s.page.Context(ctx)
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("rod: viewport height: %w", err)
	}
	return p.Mouse.Scroll(0, float64(res.Value.Int()), 1)
}

func (s *rodSession) Press(ctx context.Context, key Key) error {
	p := s.page.Context(ctx)
	switch key {
	case KeyEnd:
		return p.Keyboard.Press(input.End)
	case KeyHome:
		return p.Keyboard.Press(input.Home)
	default:
		return fmt.Errorf("rod: unsupported key %q", key)
	}
}

// Close tears the page, browser connection and browser process down.
// Kill is unconditional so repeated failed attempts cannot leak Chromium
// processes over a long-running scheduled job.
func (s *rodSession) Close() error {
	if err := s.page.Close(); err != nil {
		slog.Debug("rod: page close", "error", err)
	}
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("rod: close browser: %w", err)
	}
	return nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
