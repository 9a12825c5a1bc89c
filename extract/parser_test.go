package extract

import (
	"testing"

	"github.com/nsepulse/fiidii/models"
)

func TestParseTablePreservesVerbatimText(t *testing.T) {
	doc := mustDoc(t, pageWithRows)
	ref := newTableRef(strategyHeadingRole, testAnchor)

	data, err := parseTable(doc, ref)
	if err != nil {
		t.Fatalf("parseTable: %v", err)
	}

	wantHeaders := []string{
		"Category", "Date",
		"Buy Value(₹ Crores)", "Sell Value(₹ Crores)", "Net Value(₹ Crores)",
	}
	if len(data.Headers) != len(wantHeaders) {
		t.Fatalf("headers = %v", data.Headers)
	}
	for i, h := range wantHeaders {
		if data.Headers[i] != h {
			t.Errorf("header[%d] = %q, want %q", i, data.Headers[i], h)
		}
	}

	if len(data.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(data.Rows))
	}
	if got := data.Rows[0]["Buy Value(₹ Crores)"]; got != "14,383.93" {
		t.Errorf("DII buy = %q, want untouched page string", got)
	}
	if got := data.Rows[1]["Net Value(₹ Crores)"]; got != "-1,545.08" {
		t.Errorf("FII net = %q, want untouched page string", got)
	}
	if got := data.Rows[0]["Category"]; got != "DII **" {
		t.Errorf("category = %q, want raw cell with annotation", got)
	}
}

func TestParseTableDropsRaggedRows(t *testing.T) {
	page := `<html><body>
<h2>` + testAnchor + `</h2>
<table><thead><tr><th>Category</th><th>Buy</th><th>Sell</th></tr></thead><tbody>
<tr><td>DII</td><td>1.00</td><td>2.00</td></tr>
<tr><td>loading…</td></tr>
<tr><td>FII</td><td>3.00</td><td>4.00</td><td>extra</td></tr>
</tbody></table>
</body></html>`

	data, err := parseTable(mustDoc(t, page), newTableRef(strategyHeadingRole, testAnchor))
	if err != nil {
		t.Fatalf("parseTable: %v", err)
	}
	if len(data.Rows) != 1 {
		t.Fatalf("rows = %d, want 1 (ragged rows dropped)", len(data.Rows))
	}
	if data.Rows[0]["Category"] != "DII" {
		t.Errorf("surviving row = %v", data.Rows[0])
	}
}

func TestParseTableMissingStructure(t *testing.T) {
	page := `<html><body>
<h2>` + testAnchor + `</h2>
<table><tr><td>no thead or tbody</td></tr></table>
</body></html>`

	_, err := parseTable(mustDoc(t, page), newTableRef(strategyHeadingRole, testAnchor))
	if code := models.ErrorCode(err); code != models.ErrCodeParseEmpty {
		t.Fatalf("code = %q, want %q", code, models.ErrCodeParseEmpty)
	}
}

func TestParseTableVanishedAnchor(t *testing.T) {
	page := `<html><body><p>session expired</p></body></html>`

	_, err := parseTable(mustDoc(t, page), newTableRef(strategyHeadingRole, testAnchor))
	if code := models.ErrorCode(err); code != models.ErrCodeAnchorNotFound {
		t.Fatalf("code = %q, want %q", code, models.ErrCodeAnchorNotFound)
	}
}
