package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Target.URL != DefaultURL {
		t.Errorf("URL = %q", cfg.Target.URL)
	}
	if cfg.Target.Anchor != DefaultAnchor {
		t.Errorf("Anchor = %q", cfg.Target.Anchor)
	}
	if cfg.Target.Source != "browser" {
		t.Errorf("Source = %q, want browser", cfg.Target.Source)
	}
	if len(cfg.Target.Engines) != 2 || cfg.Target.Engines[0] != "chrome" || cfg.Target.Engines[1] != "rod" {
		t.Errorf("Engines = %v", cfg.Target.Engines)
	}
	if cfg.Extract.NavTimeout != 15*time.Second {
		t.Errorf("NavTimeout = %v", cfg.Extract.NavTimeout)
	}
	if cfg.Extract.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Extract.PollInterval)
	}
	if !cfg.Browser.Headless {
		t.Error("Headless default should be true")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Format = %q", cfg.Log.Format)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FIIDII_NAV_TIMEOUT", "30s")
	t.Setenv("FIIDII_ENGINES", "rod")
	t.Setenv("FIIDII_SOURCE", "api")
	t.Setenv("FIIDII_HEADLESS", "false")
	t.Setenv("DATABASE_URL", "postgres://localhost/fiidii")

	cfg := Load()
	if cfg.Extract.NavTimeout != 30*time.Second {
		t.Errorf("NavTimeout = %v, want 30s", cfg.Extract.NavTimeout)
	}
	if len(cfg.Target.Engines) != 1 || cfg.Target.Engines[0] != "rod" {
		t.Errorf("Engines = %v, want [rod]", cfg.Target.Engines)
	}
	if cfg.Target.Source != "api" {
		t.Errorf("Source = %q", cfg.Target.Source)
	}
	if cfg.Browser.Headless {
		t.Error("Headless override not applied")
	}
	if cfg.Store.DSN == "" {
		t.Error("DSN not read from DATABASE_URL")
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("FIIDII_NAV_TIMEOUT", "soon")
	t.Setenv("FIIDII_ROW_WAIT_BUDGET", "-3s")
	t.Setenv("FIIDII_HEADLESS", "sometimes")
	t.Setenv("FIIDII_ENGINES", " , ,")

	cfg := Load()
	if cfg.Extract.NavTimeout != 15*time.Second {
		t.Errorf("NavTimeout = %v, want default on malformed value", cfg.Extract.NavTimeout)
	}
	if cfg.Extract.RowWaitBudget != 10*time.Second {
		t.Errorf("RowWaitBudget = %v, want default on non-positive value", cfg.Extract.RowWaitBudget)
	}
	if !cfg.Browser.Headless {
		t.Error("Headless should fall back to true")
	}
	if len(cfg.Target.Engines) != 2 {
		t.Errorf("Engines = %v, want defaults on blank list", cfg.Target.Engines)
	}
}
