package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// ColumnDescriptor represents a single column of an introspected table
type ColumnDescriptor struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Nullable   bool     `json:"nullable"`
	PrimaryKey bool     `json:"primary_key"`
	Samples    []string `json:"samples,omitempty"`
}

// TableDescriptor represents an introspected table with its natural-language
// description and embedding used for relevance lookup
type TableDescriptor struct {
	Name        string             `json:"name"`
	Columns     []ColumnDescriptor `json:"columns"`
	RowEstimate int64              `json:"row_estimate"`
	Description string             `json:"description,omitempty"`
	Embedding   []float32          `json:"embedding,omitempty"`
}

// Column looks up a column by name (SQL identifiers compare case-insensitively)
func (t TableDescriptor) Column(name string) (ColumnDescriptor, bool) {
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}

	return ColumnDescriptor{}, false
}

// TableError records a per-table introspection failure; indexing of the
// remaining tables continues
type TableError struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
}

// SchemaSnapshot is the per-connection set of table descriptors built by
// indexing. Snapshots are immutable once published; re-indexing swaps in a
// complete replacement.
type SchemaSnapshot struct {
	ConnectionID string            `json:"connection_id"`
	Tables       []TableDescriptor `json:"tables"`
	Errors       []TableError      `json:"errors,omitempty"`
	Fingerprint  string            `json:"fingerprint"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Table looks up a table descriptor by name (case-insensitive)
func (s *SchemaSnapshot) Table(name string) (TableDescriptor, bool) {
	for _, tbl := range s.Tables {
		if strings.EqualFold(tbl.Name, name) {
			return tbl, true
		}
	}

	return TableDescriptor{}, false
}

// TableNames returns the snapshot's table names in indexed order
func (s *SchemaSnapshot) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, tbl := range s.Tables {
		names[i] = tbl.Name
	}

	return names
}

// Identifiers returns every table and column name in the snapshot, used for
// nearest-match suggestions when validation rejects an unknown identifier
func (s *SchemaSnapshot) Identifiers() []string {
	var ids []string

	for _, tbl := range s.Tables {
		ids = append(ids, tbl.Name)
		for _, col := range tbl.Columns {
			ids = append(ids, col.Name)
		}
	}

	return ids
}

// FingerprintTables computes a stable hash over sorted table and column names.
// Two snapshots with the same fingerprint describe the same structure, so a
// refresh that reproduces it indicates no schema drift.
func FingerprintTables(tables []TableDescriptor) string {
	parts := make([]string, 0, len(tables))

	for _, tbl := range tables {
		cols := make([]string, 0, len(tbl.Columns))
		for _, col := range tbl.Columns {
			cols = append(cols, strings.ToLower(col.Name)+":"+strings.ToLower(col.Type))
		}

		sort.Strings(cols)
		parts = append(parts, strings.ToLower(tbl.Name)+"("+strings.Join(cols, ",")+")")
	}

	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))

	return hex.EncodeToString(sum[:])
}
