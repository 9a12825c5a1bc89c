// Package extract implements the resilient table-extraction procedure:
// prioritized rendering engines driven through one shared
// navigate→locate→wait→parse sequence, with bounded retries and
// guaranteed browser teardown per attempt.
package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nsepulse/fiidii/config"
	"github.com/nsepulse/fiidii/engine"
	"github.com/nsepulse/fiidii/models"
)

// Extractor runs the extraction pipeline across the configured engines.
// It holds no state beyond the current invocation; every call starts cold.
type Extractor struct {
	engines []engine.Engine
	target  config.TargetConfig
	cfg     config.ExtractConfig
}

// New creates an Extractor for the given engine priority list and budgets.
func New(engines []engine.Engine, target config.TargetConfig, cfg config.ExtractConfig) *Extractor {
	return &Extractor{engines: engines, target: target, cfg: cfg}
}

// Extract tries each engine in priority order and returns the first
// successful table. Stage failures never escape an attempt; they become
// "try the next engine" after a short backoff. Only total exhaustion is
// surfaced, carrying the last underlying reason. A result with zero rows
// is never returned as success.
func (x *Extractor) Extract(ctx context.Context) (*models.TableData, error) {
	if len(x.engines) == 0 {
		return nil, models.NewExtractError(models.ErrCodeExhausted, "no engines configured", nil)
	}

	var lastErr error
	for i, eng := range x.engines {
		if i > 0 {
			if err := sleepCtx(ctx, x.cfg.EngineRetryDelay); err != nil {
				lastErr = err
				break
			}
		}

		slog.Info("extraction attempt", "engine", eng.Name(), "url", x.target.URL)
		start := time.Now()
		data, err := x.attempt(ctx, eng)
		if err == nil {
			slog.Info("extraction succeeded",
				"engine", eng.Name(),
				"rows", len(data.Rows),
				"elapsed", time.Since(start),
			)
			return data, nil
		}
		slog.Warn("extraction attempt failed",
			"engine", eng.Name(),
			"elapsed", time.Since(start),
			"error", err,
		)
		lastErr = err
	}

	return nil, models.NewExtractError(models.ErrCodeExhausted,
		"all configured engines exhausted", lastErr)
}

// attempt runs one full navigate→locate→wait→parse cycle on a fresh
// session. The session is closed on every exit path; a leaked browser
// process is a correctness bug for a scheduled job.
func (x *Extractor) attempt(ctx context.Context, eng engine.Engine) (*models.TableData, error) {
	sess, err := eng.NewSession(ctx)
	if err != nil {
		return nil, models.NewExtractError(models.ErrCodeBrowserCrash,
			"failed to launch browsing session", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("session close failed", "engine", eng.Name(), "error", cerr)
		}
	}()

	navCtx, navCancel := context.WithTimeout(ctx, x.cfg.NavTimeout)
	defer navCancel()
	if err := sess.Navigate(navCtx, x.target.URL); err != nil {
		return nil, models.NewExtractError(models.ErrCodeNavigation,
			"navigation to target page failed", err)
	}

	// Quiescence is an optimization, not a correctness requirement; slow
	// third-party trackers routinely prevent it.
	if qerr := sess.WaitQuiet(ctx, x.cfg.QuietTimeout); qerr != nil {
		slog.Debug("network quiescence not reached, proceeding", "error", qerr)
	}

	ref, err := x.locate(ctx, x.snapshotter(sess))
	if err != nil {
		return nil, err
	}

	waitErr := x.awaitRows(ctx, sess, ref)

	data, err := x.parse(ctx, sess, ref)
	if err != nil {
		return nil, err
	}
	if len(data.Rows) == 0 {
		// Rows can exist structurally while the cell text is still
		// populating; reparse once after a short delay.
		if serr := sleepCtx(ctx, x.cfg.ReparseDelay); serr != nil {
			return nil, models.NewExtractError(models.ErrCodeParseEmpty, "reparse aborted", serr)
		}
		data, err = x.parse(ctx, sess, ref)
		if err != nil {
			return nil, err
		}
		if len(data.Rows) == 0 {
			if waitErr != nil {
				return nil, waitErr
			}
			return nil, models.NewExtractError(models.ErrCodeParseEmpty,
				"parse yielded zero rows after retry", nil)
		}
	}

	return data, nil
}

// snapshotFunc produces a parsed snapshot of the current document.
type snapshotFunc func(ctx context.Context) (*goquery.Document, error)

func (x *Extractor) snapshotter(sess engine.Session) snapshotFunc {
	return func(ctx context.Context) (*goquery.Document, error) {
		return x.snapshot(ctx, sess)
	}
}

func (x *Extractor) snapshot(ctx context.Context, sess engine.Session) (*goquery.Document, error) {
	actx, cancel := context.WithTimeout(ctx, x.cfg.ActionTimeout)
	defer cancel()
	raw, err := sess.HTML(actx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(raw))
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
