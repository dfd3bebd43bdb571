// Package rows projects a report payload into flat, sheet-scoped rows for
// the spreadsheet sink.
package rows

// Correlation columns carried by every row so rows across tabs can be
// joined back to one submission.
const (
	ColTimestamp = "timestamp_iso"
	ColReportID  = "relatorio_id"
)

// Row is an ordered set of string cells. Keys keep first-insertion order;
// setting an existing key overwrites the value in place.
type Row struct {
	keys []string
	vals map[string]string
}

func NewRow() *Row {
	return &Row{vals: map[string]string{}}
}

// RowOf builds a row from alternating key, value arguments.
func RowOf(kv ...string) *Row {
	r := NewRow()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

func (r *Row) Set(key, value string) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = value
}

func (r *Row) Get(key string) (string, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Keys returns column names in insertion order.
func (r *Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Row) Len() int {
	return len(r.keys)
}

// Record is a row addressed to a named sheet.
type Record struct {
	Sheet string
	Row   *Row
}
