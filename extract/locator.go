package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/nsepulse/fiidii/models"
)

// Locator strategies, layered. Each layer is only tried after the previous
// one's budget expires.
type strategy int

const (
	// strategyHeadingRole matches elements with an accessible heading role
	// whose text equals the anchor exactly. Most robust against unrelated
	// text that merely contains the anchor.
	strategyHeadingRole strategy = iota

	// strategyExactText matches any element whose normalized text equals
	// the anchor (regexp anchored at both ends, so near-duplicate headings
	// with trailing qualifiers are rejected).
	strategyExactText

	// strategyBareTable ignores the anchor and takes the first table with
	// a header section and at least one body row. Last resort only.
	strategyBareTable
)

func (s strategy) String() string {
	switch s {
	case strategyHeadingRole:
		return "heading-role"
	case strategyExactText:
		return "exact-text"
	case strategyBareTable:
		return "bare-table"
	}
	return "unknown"
}

var (
	selHeadings = cascadia.MustCompile("h1, h2, h3, h4, h5, h6, [role=heading]")
	selTables   = cascadia.MustCompile("table")
	selAny      = cascadia.MustCompile("*")
)

// tableRef is the handle to a located table: not a live DOM reference but a
// resolver that re-finds the same table on any later snapshot. Snapshots
// are re-taken between readiness polls, so the handle must survive the
// document being re-rendered underneath it.
type tableRef struct {
	strategy strategy
	anchor   *regexp.Regexp
}

func newTableRef(st strategy, anchor string) *tableRef {
	return &tableRef{
		strategy: st,
		anchor:   regexp.MustCompile(`^` + regexp.QuoteMeta(anchor) + `$`),
	}
}

// resolve re-applies the winning strategy to a snapshot and returns the
// target table, or nil when it is not (or no longer) present.
func (r *tableRef) resolve(doc *goquery.Document) *goquery.Selection {
	switch r.strategy {
	case strategyHeadingRole:
		return tableAfterHeading(doc, exactMatch(doc.FindMatcher(selHeadings), r.anchor))
	case strategyExactText:
		return tableAfterHeading(doc, deepestExactMatch(doc, r.anchor))
	case strategyBareTable:
		return firstPopulatedTable(doc)
	}
	return nil
}

// locate runs the layered anchoring strategy against live snapshots and
// returns a re-applicable table handle.
func (x *Extractor) locate(ctx context.Context, snap snapshotFunc) (*tableRef, error) {
	layers := []struct {
		st     strategy
		budget time.Duration
	}{
		{strategyHeadingRole, x.cfg.HeadingTimeout},
		{strategyExactText, x.cfg.TableTimeout},
		{strategyBareTable, x.cfg.HeaderTimeout},
	}

	for _, layer := range layers {
		ref, err := x.pollLocate(ctx, snap, layer.st, layer.budget)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			return ref, nil
		}
	}
	return nil, models.NewExtractError(models.ErrCodeAnchorNotFound,
		"no locator strategy matched the anchor heading", nil)
}

// pollLocate retries one strategy against fresh snapshots until it matches
// or its budget expires. A nil, nil return means "try the next layer".
func (x *Extractor) pollLocate(ctx context.Context, snap snapshotFunc, st strategy, budget time.Duration) (*tableRef, error) {
	ref := newTableRef(st, x.target.Anchor)
	deadline := time.Now().Add(budget)
	for {
		doc, err := snap(ctx)
		if err == nil && ref.resolve(doc) != nil {
			return ref, nil
		}
		if !time.Now().Add(x.cfg.PollInterval).Before(deadline) {
			return nil, nil
		}
		if err := sleepCtx(ctx, x.cfg.PollInterval); err != nil {
			return nil, models.NewExtractError(models.ErrCodeAnchorNotFound,
				"locate aborted", err)
		}
	}
}

// exactMatch returns the first element of sel whose normalized text matches
// the anchored pattern, or nil.
func exactMatch(sel *goquery.Selection, pattern *regexp.Regexp) *goquery.Selection {
	var found *goquery.Selection
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if pattern.MatchString(normalizeSpace(s.Text())) {
			found = s
			return false
		}
		return true
	})
	return found
}

// deepestExactMatch scans every element for an exact anchor match and keeps
// the deepest one. Ancestors of a matching element match too (their text
// content includes the descendant's), so the shallow hits are discarded.
func deepestExactMatch(doc *goquery.Document, pattern *regexp.Regexp) *goquery.Selection {
	var matches []*goquery.Selection
	doc.FindMatcher(selAny).Each(func(_ int, s *goquery.Selection) {
		if pattern.MatchString(normalizeSpace(s.Text())) {
			matches = append(matches, s)
		}
	})
	for _, m := range matches {
		inner := false
		for _, other := range matches {
			if other != m && m.Contains(other.Get(0)) {
				inner = true
				break
			}
		}
		if !inner {
			return m
		}
	}
	return nil
}

// tableAfterHeading scopes the search to the heading's ancestors, nearest
// first, and picks the first table that follows the heading in document
// order within that scope. Never the first table on the whole page; the
// page hosts several similar tables.
func tableAfterHeading(doc *goquery.Document, heading *goquery.Selection) *goquery.Selection {
	if heading == nil || heading.Length() == 0 {
		return nil
	}
	hNode := heading.Get(0)

	var scopes []*goquery.Selection
	heading.Parents().Each(func(_ int, p *goquery.Selection) {
		scopes = append(scopes, p)
	})

	for _, scope := range scopes {
		var found *goquery.Selection
		scope.FindMatcher(selTables).EachWithBreak(func(_ int, t *goquery.Selection) bool {
			if follows(doc, hNode, t.Get(0)) {
				found = t
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// firstPopulatedTable returns the first table with a thead and at least one
// tbody row.
func firstPopulatedTable(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.FindMatcher(selTables).EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if t.Find("thead").Length() > 0 && t.Find("tbody tr").Length() > 0 {
			found = t
			return false
		}
		return true
	})
	return found
}

// follows reports whether cand appears strictly after ref in pre-order
// document position.
func follows(doc *goquery.Document, ref, cand *html.Node) bool {
	if ref == nil || cand == nil || ref == cand {
		return false
	}
	root := doc.Get(0)
	sawRef := false
	var walk func(n *html.Node) int
	walk = func(n *html.Node) int {
		if n == ref {
			sawRef = true
		}
		if n == cand {
			if sawRef {
				return 1
			}
			return -1
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if r := walk(c); r != 0 {
				return r
			}
		}
		return 0
	}
	return walk(root) == 1
}

var spaceRun = regexp.MustCompile(`\s+`)

// normalizeSpace collapses whitespace runs so rendered line breaks inside
// headings and cells compare equal to the configured anchor text.
func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
