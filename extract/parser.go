package extract

import (
	"context"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/nsepulse/fiidii/engine"
	"github.com/nsepulse/fiidii/models"
)

// parse takes a fresh snapshot and extracts the located table into plain
// data. Only rows whose cell count equals the header count are kept: the
// source occasionally renders ragged rows mid-animation, and those are
// transient artifacts, not data. Dropped rows are logged so a genuine
// upstream rendering bug does not disappear silently.
func (x *Extractor) parse(ctx context.Context, sess engine.Session, ref *tableRef) (*models.TableData, error) {
	doc, err := x.snapshot(ctx, sess)
	if err != nil {
		return nil, models.NewExtractError(models.ErrCodeParseEmpty, "snapshot for parse failed", err)
	}
	return parseTable(doc, ref)
}

// parseTable extracts header and row text from the resolved table.
func parseTable(doc *goquery.Document, ref *tableRef) (*models.TableData, error) {
	sel := ref.resolve(doc)
	if sel == nil || sel.Length() == 0 {
		return nil, models.NewExtractError(models.ErrCodeAnchorNotFound,
			"located table no longer present in snapshot", nil)
	}
	table := sel.First()

	if table.Find("thead").Length() == 0 || table.Find("tbody").Length() == 0 {
		return nil, models.NewExtractError(models.ErrCodeParseEmpty,
			"table is missing thead or tbody", nil)
	}

	var headers []string
	table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, normalizeSpace(th.Text()))
	})
	if len(headers) == 0 {
		return nil, models.NewExtractError(models.ErrCodeParseEmpty,
			"table header row has no cells", nil)
	}

	dropped := 0
	rows := make([]models.RawRow, 0, 8)
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() != len(headers) {
			dropped++
			return
		}
		row := make(models.RawRow, len(headers))
		cells.Each(func(i int, td *goquery.Selection) {
			row[headers[i]] = normalizeSpace(td.Text())
		})
		rows = append(rows, row)
	})
	if dropped > 0 {
		slog.Debug("dropped ragged rows", "count", dropped, "headers", len(headers))
	}

	return &models.TableData{Headers: headers, Rows: rows}, nil
}
