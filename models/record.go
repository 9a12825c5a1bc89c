package models

// RawRow maps a column header (verbatim, including currency annotations)
// to the raw cell text of a single table row. Values are untouched page
// strings; numeric conversion happens downstream in transform.
type RawRow map[string]string

// TableData is the result of one successful extraction: the header texts
// in original column order plus the body rows keyed by those headers.
// Column order lives in Headers because Go maps do not preserve it.
//
// A TableData with zero rows is never returned as success; absence of
// data is always surfaced as an error by the extractor.
type TableData struct {
	Headers []string `json:"headers"`
	Rows    []RawRow `json:"rows"`
}

// Get returns the value for the header at position i of row r, or "".
func (t *TableData) Get(r, i int) string {
	if r < 0 || r >= len(t.Rows) || i < 0 || i >= len(t.Headers) {
		return ""
	}
	return t.Rows[r][t.Headers[i]]
}
