package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsepulse/fiidii/config"
	"github.com/nsepulse/fiidii/engine"
	"github.com/nsepulse/fiidii/extract"
	"github.com/nsepulse/fiidii/fetch"
	"github.com/nsepulse/fiidii/models"
	"github.com/nsepulse/fiidii/notify"
	"github.com/nsepulse/fiidii/store"
	"github.com/nsepulse/fiidii/transform"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("fiidii starting",
		"source", cfg.Target.Source,
		"url", cfg.Target.URL,
		"engines", cfg.Target.Engines,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── 3. Acquire the daily-flows record ───────────────────────────
	flows, records, err := acquire(ctx, cfg)
	if err != nil {
		slog.Error("acquisition failed",
			"source", cfg.Target.Source,
			"code", models.ErrorCode(err),
			"error", err,
		)
		os.Exit(1)
	}
	if err := printRecords(os.Stdout, records); err != nil {
		slog.Warn("failed to print records", "error", err)
	}

	// ── 4. Persist (skipped when no DSN is configured) ──────────────
	if cfg.Store.DSN == "" {
		slog.Info("persistence skipped, DATABASE_URL not set")
	} else if err := persist(ctx, cfg.Store.DSN, flows); err != nil {
		slog.Error("persistence failed", "error", err)
		os.Exit(1)
	}

	// ── 5. Notify (skipped unless bot token and chat are set) ───────
	if cfg.Notify.BotToken == "" || cfg.Notify.ChatID == "" {
		slog.Info("notification skipped, bot token or chat not set")
	} else {
		n := notify.New(cfg.Notify.BotToken, cfg.Notify.ChatID)
		if err := n.Send(ctx, flows); err != nil {
			slog.Error("notification failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("fiidii finished", "run_date", flows.RunDate.Format("2006-01-02"))
}

// acquire runs the configured data path and returns the normalized record
// together with the raw records it was built from.
func acquire(ctx context.Context, cfg *config.Config) (*models.DailyFlows, any, error) {
	switch cfg.Target.Source {
	case "api":
		client, err := fetch.NewNseClient()
		if err != nil {
			return nil, nil, err
		}
		entries, err := client.TradeData(ctx)
		if err != nil {
			return nil, nil, err
		}
		flows, err := transform.FromEntries(entries)
		return flows, entries, err
	default:
		engines := engine.Build(cfg.Target.Engines, cfg.Browser)
		x := extract.New(engines, cfg.Target, cfg.Extract)
		data, err := x.Extract(ctx)
		if err != nil {
			return nil, nil, err
		}
		flows, err := transform.FromTable(data)
		return flows, data, err
	}
}

func persist(ctx context.Context, dsn string, flows *models.DailyFlows) error {
	st, err := store.Open(dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	existed, err := st.Upsert(ctx, flows)
	if err != nil {
		return err
	}
	slog.Info("record persisted",
		"run_date", flows.RunDate.Format("2006-01-02"),
		"existed", existed,
	)
	return nil
}

// printRecords writes the raw extracted records as indented JSON for
// operators running the job by hand. Logs go to stderr, so stdout stays
// machine-readable.
func printRecords(w io.Writer, records any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
