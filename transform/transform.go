// Package transform converts raw extracted table rows into the normalized
// daily-flows record. Pure data transformation; the locale-aware parsing
// of currency strings and report dates lives here, not in the extractor.
package transform

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nsepulse/fiidii/models"
)

// Logical column names looked up in raw rows. The site varies the spacing
// around the unit annotation ("Buy Value(₹ Crores)" vs "Buy Value (₹
// Crores)"), so lookups compare space-stripped prefixes instead of exact
// header strings.
const (
	colCategory = "Category"
	colDate     = "Date"
	colBuy      = "Buy Value"
	colSell     = "Sell Value"
	colNet      = "Net Value"
)

// FromTable builds the daily-flows record from the extracted report table.
// Both a DII and a FII/FPI row must be present.
func FromTable(data *models.TableData) (*models.DailyFlows, error) {
	if data == nil || len(data.Rows) == 0 {
		return nil, fmt.Errorf("transform: no rows to transform")
	}

	var dii, fii models.RawRow
	for _, row := range data.Rows {
		switch category(lookup(row, colCategory)) {
		case "DII":
			if dii == nil {
				dii = row
			}
		case "FII":
			if fii == nil {
				fii = row
			}
		}
	}
	if dii == nil || fii == nil {
		return nil, fmt.Errorf("transform: expected both DII and FII/FPI rows, got %d rows", len(data.Rows))
	}

	runDate, err := ParseReportDate(lookup(dii, colDate))
	if err != nil {
		return nil, fmt.Errorf("transform: run date: %w", err)
	}

	flows := &models.DailyFlows{RunDate: runDate}
	if flows.DIIBuy, err = ParseINR(lookup(dii, colBuy)); err != nil {
		return nil, fmt.Errorf("transform: DII buy: %w", err)
	}
	if flows.DIISell, err = ParseINR(lookup(dii, colSell)); err != nil {
		return nil, fmt.Errorf("transform: DII sell: %w", err)
	}
	if flows.DIINet, err = ParseINR(lookup(dii, colNet)); err != nil {
		return nil, fmt.Errorf("transform: DII net: %w", err)
	}
	if flows.FIIBuy, err = ParseINR(lookup(fii, colBuy)); err != nil {
		return nil, fmt.Errorf("transform: FII buy: %w", err)
	}
	if flows.FIISell, err = ParseINR(lookup(fii, colSell)); err != nil {
		return nil, fmt.Errorf("transform: FII sell: %w", err)
	}
	if flows.FIINet, err = ParseINR(lookup(fii, colNet)); err != nil {
		return nil, fmt.Errorf("transform: FII net: %w", err)
	}

	flows.DIINet = netFallback(flows.DIINet, flows.DIIBuy, flows.DIISell)
	flows.FIINet = netFallback(flows.FIINet, flows.FIIBuy, flows.FIISell)
	return flows, nil
}

// FromEntries builds the daily-flows record from the JSON-API entry shape.
func FromEntries(entries []models.TradeEntry) (*models.DailyFlows, error) {
	var dii, fii *models.TradeEntry
	for i := range entries {
		switch category(entries[i].Category) {
		case "DII":
			if dii == nil {
				dii = &entries[i]
			}
		case "FII":
			if fii == nil {
				fii = &entries[i]
			}
		}
	}
	if dii == nil || fii == nil {
		return nil, fmt.Errorf("transform: expected both DII and FII/FPI entries, got %d", len(entries))
	}

	runDate, err := ParseReportDate(dii.Date)
	if err != nil {
		return nil, fmt.Errorf("transform: run date: %w", err)
	}

	flows := &models.DailyFlows{RunDate: runDate}
	if flows.DIIBuy, err = ParseINR(dii.BuyValue); err != nil {
		return nil, fmt.Errorf("transform: DII buy: %w", err)
	}
	if flows.DIISell, err = ParseINR(dii.SellValue); err != nil {
		return nil, fmt.Errorf("transform: DII sell: %w", err)
	}
	if flows.DIINet, err = ParseINR(dii.NetValue); err != nil {
		return nil, fmt.Errorf("transform: DII net: %w", err)
	}
	if flows.FIIBuy, err = ParseINR(fii.BuyValue); err != nil {
		return nil, fmt.Errorf("transform: FII buy: %w", err)
	}
	if flows.FIISell, err = ParseINR(fii.SellValue); err != nil {
		return nil, fmt.Errorf("transform: FII sell: %w", err)
	}
	if flows.FIINet, err = ParseINR(fii.NetValue); err != nil {
		return nil, fmt.Errorf("transform: FII net: %w", err)
	}

	flows.DIINet = netFallback(flows.DIINet, flows.DIIBuy, flows.DIISell)
	flows.FIINet = netFallback(flows.FIINet, flows.FIIBuy, flows.FIISell)
	return flows, nil
}

var inrJunk = regexp.MustCompile(`[^0-9.,-]`)

// ParseINR converts an Indian-formatted currency string to a decimal.
// "14,383.93" → 14383.93, "-1,545.08" → -1545.08. Blank input is null,
// unparseable input is an error: bad data should fail loud, not persist
// as zero.
func ParseINR(s string) (decimal.NullDecimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(inrJunk.ReplaceAllString(s, "")), ",", "")
	if cleaned == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("cannot parse numeric value %q: %w", s, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// ParseReportDate parses the report's day column, e.g. "01-Oct-2025".
// The long month form is accepted as well, in case the site ever switches.
func ParseReportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("02-Jan-2006", s); err == nil {
		return t, nil
	}
	t, err := time.Parse("02-January-2006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse report date %q", s)
	}
	return t, nil
}

// category normalizes a raw category cell ("DII **", "FII/FPI *") to
// "DII", "FII" or "".
func category(raw string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(c, "DII"):
		return "DII"
	case strings.HasPrefix(c, "FII"):
		return "FII"
	}
	return ""
}

// lookup finds a cell by logical column name, tolerating the site's
// inconsistent spacing inside header text.
func lookup(row models.RawRow, logical string) string {
	want := squashKey(logical)
	for k, v := range row {
		if strings.HasPrefix(squashKey(k), want) {
			return v
		}
	}
	return ""
}

func squashKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, " ", ""))
}

// netFallback fills a missing net column from buy−sell when both sides
// are present.
func netFallback(net, buy, sell decimal.NullDecimal) decimal.NullDecimal {
	if net.Valid || !buy.Valid || !sell.Valid {
		return net
	}
	return decimal.NullDecimal{
		Decimal: buy.Decimal.Sub(sell.Decimal).Round(2),
		Valid:   true,
	}
}
