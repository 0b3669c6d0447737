package types

// RowSet is the materialized result of executing a validated statement.
// Truncated is set when the provider stopped scanning at the row limit.
type RowSet struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// RowCount returns the number of materialized rows
func (r *RowSet) RowCount() int {
	return len(r.Rows)
}
