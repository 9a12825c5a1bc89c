package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/nsepulse/fiidii/config"
)

// Key identifies a keyboard nudge sent to the page.
type Key string

const (
	KeyEnd  Key = "End"
	KeyHome Key = "Home"
)

// Session is one isolated browsing context. Every extraction attempt gets
// a fresh session (cold start, no cookies or state shared across attempts)
// and must Close it on every exit path.
type Session interface {
	// Navigate loads the URL and waits for minimal DOM readiness
	// (content parsed, not full resource load).
	Navigate(ctx context.Context, url string) error

	// WaitQuiet waits, best-effort, for network activity to settle.
	// Hitting the timeout is not a failure; callers proceed regardless.
	WaitQuiet(ctx context.Context, timeout time.Duration) error

	// HTML returns a snapshot of the current rendered document. The
	// snapshot is plain data and survives the session being torn down.
	HTML(ctx context.Context) (string, error)

	// Scroll nudges the page down by roughly one viewport to trigger
	// lazy rendering.
	Scroll(ctx context.Context) error

	// Press sends a keyboard jump (End/Home) to the page.
	Press(ctx context.Context, key Key) error

	// Close releases the browsing context and its browser process.
	Close() error
}

// Engine launches rendering sessions. Implementations are interchangeable;
// the extraction procedure drives them through the Session primitives only.
type Engine interface {
	// Name returns the engine identifier (e.g. "chrome", "rod").
	Name() string

	// NewSession launches a fresh, isolated browsing context.
	NewSession(ctx context.Context) (Session, error)
}

// Build maps configured engine names to instances, preserving priority
// order. Unknown names are skipped with a warning.
func Build(names []string, cfg config.BrowserConfig) []Engine {
	engines := make([]Engine, 0, len(names))
	for _, name := range names {
		switch name {
		case "chrome":
			engines = append(engines, NewChromeEngine(cfg))
		case "rod":
			engines = append(engines, NewRodEngine(cfg))
		default:
			slog.Warn("unknown engine name, skipping", "engine", name)
		}
	}
	return engines
}
