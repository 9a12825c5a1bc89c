package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/nsepulse/fiidii/engine"
	"github.com/nsepulse/fiidii/models"
)

// awaitRows polls the located table for body rows within the row-wait
// budget. The target renders rows asynchronously after the table skeleton
// appears, with no loading indicator, so between polls the page is nudged:
// a scroll per round, and once late in the budget a keyboard jump to the
// end and back to force virtualized rows to materialize.
func (x *Extractor) awaitRows(ctx context.Context, sess engine.Session, ref *tableRef) error {
	deadline := time.Now().Add(x.cfg.RowWaitBudget)
	keyJumped := false

	x.awaitHeader(ctx, sess, ref)

	for time.Now().Before(deadline) {
		if n := x.rowCount(ctx, sess, ref); n > 0 {
			return nil
		}

		if err := x.nudgeScroll(ctx, sess); err != nil {
			slog.Debug("scroll nudge failed", "error", err)
		}
		if !keyJumped && time.Until(deadline) < x.cfg.RowWaitBudget/4 {
			x.nudgeKeys(ctx, sess)
			keyJumped = true
		}

		if err := sleepCtx(ctx, x.cfg.PollInterval); err != nil {
			return models.NewExtractError(models.ErrCodeEmptyTable, "row wait aborted", err)
		}
	}

	// One last check after the budget expires, so a row that landed between
	// the final poll and now is not declared missing.
	if n := x.rowCount(ctx, sess, ref); n > 0 {
		return nil
	}
	return models.NewExtractError(models.ErrCodeEmptyTable,
		"no body rows rendered within the wait budget", nil)
}

// awaitHeader waits briefly for the header row to materialize. Failure is
// not fatal here; the parser reports missing structure on its own.
func (x *Extractor) awaitHeader(ctx context.Context, sess engine.Session, ref *tableRef) {
	deadline := time.Now().Add(x.cfg.HeaderTimeout)
	for {
		if doc, err := x.snapshot(ctx, sess); err == nil {
			if table := ref.resolve(doc); table != nil && table.First().Find("thead th").Length() > 0 {
				return
			}
		}
		if !time.Now().Add(x.cfg.PollInterval).Before(deadline) {
			slog.Debug("header row not ready within budget, proceeding")
			return
		}
		if sleepCtx(ctx, x.cfg.PollInterval) != nil {
			return
		}
	}
}

// rowCount counts tbody rows of the located table on a fresh snapshot.
// Errors count as zero; the caller keeps polling until its budget ends.
func (x *Extractor) rowCount(ctx context.Context, sess engine.Session, ref *tableRef) int {
	doc, err := x.snapshot(ctx, sess)
	if err != nil {
		slog.Debug("snapshot failed during row wait", "error", err)
		return 0
	}
	table := ref.resolve(doc)
	if table == nil {
		return 0
	}
	return table.First().Find("tbody tr").Length()
}

func (x *Extractor) nudgeScroll(ctx context.Context, sess engine.Session) error {
	actx, cancel := context.WithTimeout(ctx, x.cfg.ActionTimeout)
	defer cancel()
	return sess.Scroll(actx)
}

// nudgeKeys jumps to the end of the document and back. Cheap, and it is
// the only thing that reliably wakes the lazy renderer when scrolling
// alone does not.
func (x *Extractor) nudgeKeys(ctx context.Context, sess engine.Session) {
	actx, cancel := context.WithTimeout(ctx, x.cfg.ActionTimeout)
	defer cancel()
	if err := sess.Press(actx, engine.KeyEnd); err != nil {
		slog.Debug("key nudge failed", "key", engine.KeyEnd, "error", err)
		return
	}
	_ = sleepCtx(ctx, x.cfg.NudgeSettle)
	if err := sess.Press(actx, engine.KeyHome); err != nil {
		slog.Debug("key nudge failed", "key", engine.KeyHome, "error", err)
	}
}
