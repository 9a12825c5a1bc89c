package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Target  TargetConfig
	Extract ExtractConfig
	Browser BrowserConfig
	Store   StoreConfig
	Notify  NotifyConfig
	Log     LogConfig
}

// TargetConfig identifies the page and table to extract.
type TargetConfig struct {
	// URL is the report page that requires full browser rendering.
	URL string // default: the NSE FII/DII report page

	// Anchor is the heading text that disambiguates the target table.
	// Matching is exact (whitespace-trimmed), never substring.
	Anchor string

	// Source selects the data path: "browser" (rendered table) or
	// "api" (direct JSON endpoint).
	Source string // default: "browser"

	// Engines is the prioritized list of rendering engines.
	Engines []string // default: ["chrome", "rod"]
}

// ExtractConfig carries the per-stage timeout budgets of one extraction
// attempt. All values are durations with built-in defaults; absent or
// malformed environment values fall back silently.
type ExtractConfig struct {
	// NavTimeout bounds page navigation up to DOM readiness.
	NavTimeout time.Duration // default: 15s

	// QuietTimeout bounds the best-effort network-quiescence wait.
	// Expiry is not an error; quiescence is advisory only.
	QuietTimeout time.Duration // default: 3s

	// HeadingTimeout bounds the heading-role locator layer.
	HeadingTimeout time.Duration // default: 8s

	// TableTimeout bounds the exact-text fallback locator layer.
	TableTimeout time.Duration // default: 5s

	// HeaderTimeout bounds the wait for the header row to materialize.
	HeaderTimeout time.Duration // default: 3s

	// RowWaitBudget is the total budget for body rows to render.
	RowWaitBudget time.Duration // default: 10s

	// ActionTimeout bounds a single session primitive (snapshot, nudge).
	ActionTimeout time.Duration // default: 10s

	// PollInterval is the delay between readiness polls.
	PollInterval time.Duration // default: 250ms

	// NudgeSettle is the pause after a DOM nudge before re-polling.
	NudgeSettle time.Duration // default: 400ms

	// ReparseDelay is the pause before the single in-attempt reparse.
	ReparseDelay time.Duration // default: 2500ms

	// EngineRetryDelay is the backoff between engine attempts.
	EngineRetryDelay time.Duration // default: 2s
}

// BrowserConfig controls the browser processes the engines launch.
type BrowserConfig struct {
	// Headless controls whether browsers run headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is an optional proxy URL applied to all engines.
	Proxy string
}

// StoreConfig controls Postgres persistence.
type StoreConfig struct {
	// DSN is the Postgres connection string. Empty disables persistence.
	DSN string
}

// NotifyConfig controls Telegram delivery. Both fields must be set for
// notifications to be sent.
type NotifyConfig struct {
	BotToken string
	ChatID   string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Defaults for the extraction target.
const (
	DefaultURL    = "https://www.nseindia.com/reports/fii-dii"
	DefaultAnchor = "FII/FPI & DII trading activity on NSE in Capital Market Segment"
)

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Target: TargetConfig{
			URL:     envOr("FIIDII_URL", DefaultURL),
			Anchor:  envOr("FIIDII_ANCHOR", DefaultAnchor),
			Source:  envOr("FIIDII_SOURCE", "browser"),
			Engines: envSliceOr("FIIDII_ENGINES", []string{"chrome", "rod"}),
		},
		Extract: ExtractConfig{
			NavTimeout:       envDurationOr("FIIDII_NAV_TIMEOUT", 15*time.Second),
			QuietTimeout:     envDurationOr("FIIDII_QUIET_TIMEOUT", 3*time.Second),
			HeadingTimeout:   envDurationOr("FIIDII_HEADING_TIMEOUT", 8*time.Second),
			TableTimeout:     envDurationOr("FIIDII_TABLE_TIMEOUT", 5*time.Second),
			HeaderTimeout:    envDurationOr("FIIDII_HEADER_TIMEOUT", 3*time.Second),
			RowWaitBudget:    envDurationOr("FIIDII_ROW_WAIT_BUDGET", 10*time.Second),
			ActionTimeout:    envDurationOr("FIIDII_ACTION_TIMEOUT", 10*time.Second),
			PollInterval:     envDurationOr("FIIDII_POLL_INTERVAL", 250*time.Millisecond),
			NudgeSettle:      envDurationOr("FIIDII_NUDGE_SETTLE", 400*time.Millisecond),
			ReparseDelay:     envDurationOr("FIIDII_REPARSE_DELAY", 2500*time.Millisecond),
			EngineRetryDelay: envDurationOr("FIIDII_ENGINE_RETRY_DELAY", 2*time.Second),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("FIIDII_HEADLESS", true),
			NoSandbox:  envBoolOr("FIIDII_NO_SANDBOX", false),
			BrowserBin: os.Getenv("FIIDII_BROWSER_BIN"),
			Proxy:      os.Getenv("FIIDII_PROXY"),
		},
		Store: StoreConfig{
			DSN: os.Getenv("DATABASE_URL"),
		},
		Notify: NotifyConfig{
			BotToken: os.Getenv("FIIDII_BOT_TOKEN"),
			ChatID:   os.Getenv("FIIDII_CHAT_ID"),
		},
		Log: LogConfig{
			Level:  envOr("FIIDII_LOG_LEVEL", "info"),
			Format: envOr("FIIDII_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
