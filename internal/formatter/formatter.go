// Package formatter renders search responses, cached pages, schema
// snapshots and system stats for terminal output.
package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fedsearch/fedsearch/internal/cache"
	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/search"
	"github.com/fedsearch/fedsearch/internal/sqlgen"
	"github.com/fedsearch/fedsearch/internal/types"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatLong  OutputFormat = "long"
	FormatJSON  OutputFormat = "json"
)

const snippetWidth = 60

// ParseFormat validates a format flag value.
func ParseFormat(raw string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(raw)) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatLong:
		return FormatLong, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", apperrors.Newf(apperrors.ErrTypeValidation, "unknown output format %q", raw).
			WithSuggestion("Supported formats: table, long, json")
	}
}

// Formatter handles terminal output formatting
type Formatter struct{}

// NewFormatter creates a new formatter instance
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatResponse renders a search response.
func (f *Formatter) FormatResponse(w io.Writer, resp *search.SearchResponse, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, resp)
	case FormatLong:
		return f.formatResponseLong(w, resp)
	default:
		return f.formatResponseTable(w, resp)
	}
}

func (f *Formatter) formatResponseTable(w io.Writer, resp *search.SearchResponse) error {
	fmt.Fprintf(w, "Query: %s  (request %s, %dms)\n", resp.Query, resp.RequestID, resp.TookMS)

	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "(no results)")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"#", "SOURCE", "SCORE", "TITLE", "SNIPPET"})
		for i, r := range resp.Results {
			t.AppendRow(table.Row{
				i + 1,
				r.Source,
				fmt.Sprintf("%.2f", r.NormalizedScore),
				r.Title,
				truncate(flatten(r.Snippet), snippetWidth),
			})
		}
		t.Render()
	}

	fmt.Fprintln(w, "Sources: "+f.sourcesLine(resp.Sources))

	if resp.SQL != nil && resp.SQL.Page != nil && len(resp.SQL.Page.Rows) > 0 {
		fmt.Fprintf(w, "\nSQL rows (page %d/%d):\n", resp.SQL.Page.PageNumber, resp.SQL.Page.TotalPages)
		return f.FormatPage(w, resp.SQL.Page)
	}
	return nil
}

func (f *Formatter) formatResponseLong(w io.Writer, resp *search.SearchResponse) error {
	var lines []string

	lines = append(lines, fmt.Sprintf("Query: %s", resp.Query))
	lines = append(lines, "Request: "+resp.RequestID)
	lines = append(lines, fmt.Sprintf("Took: %dms", resp.TookMS))
	lines = append(lines, "Sources: "+f.sourcesLine(resp.Sources))

	for i, r := range resp.Results {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("%d. %s  (%s, score %.2f)", i+1, orDash(r.Title), r.Source, r.NormalizedScore))
		lines = append(lines, "   Origin: "+r.OriginID)
		if r.Snippet != "" {
			for _, snippetLine := range strings.Split(r.Snippet, "\n") {
				lines = append(lines, "   "+snippetLine)
			}
		}
	}

	if resp.SQL != nil && resp.SQL.Generated != nil {
		lines = append(lines, "")
		lines = append(lines, "Generated SQL: "+resp.SQL.Generated.SQLText)
		lines = append(lines, fmt.Sprintf("Generation: %s (confidence %.2f, cached %t)",
			resp.SQL.Generated.Method, resp.SQL.Generated.Confidence, resp.SQL.FromCache))
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// sourcesLine renders per-source statuses in priority order.
func (f *Formatter) sourcesLine(sources map[string]search.SourceStatus) string {
	order := []string{search.SourceSQL, search.SourceDoc}
	parts := make([]string, 0, len(sources))

	seen := make(map[string]bool, len(sources))
	for _, name := range order {
		if status, ok := sources[name]; ok {
			parts = append(parts, sourcePart(name, status))
			seen[name] = true
		}
	}
	for name, status := range sources {
		if !seen[name] {
			parts = append(parts, sourcePart(name, status))
		}
	}

	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func sourcePart(name string, status search.SourceStatus) string {
	switch status.Status {
	case search.StatusOK:
		return fmt.Sprintf("%s=ok (%d in %dms)", name, status.Count, status.LatencyMS)
	case search.StatusSkipped:
		return name + "=skipped"
	default:
		return fmt.Sprintf("%s=%s (%s)", name, status.Status, status.Reason)
	}
}

// FormatPage renders one page of cached rows as a table.
func (f *Formatter) FormatPage(w io.Writer, page *cache.Page) error {
	if page == nil || len(page.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(page.Columns))
	for i, col := range page.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range page.Rows {
		cells := make(table.Row, len(page.Columns))
		for i := range page.Columns {
			if i < len(row) {
				cells[i] = cellValue(row[i])
			} else {
				cells[i] = ""
			}
		}
		t.AppendRow(cells)
	}
	t.Render()

	suffix := ""
	if page.Truncated {
		suffix = ", truncated"
	}
	_, err := fmt.Fprintf(w, "(%d rows, page %d/%d of %d total%s)\n",
		len(page.Rows), page.PageNumber, page.TotalPages, page.TotalRows, suffix)
	return err
}

// FormatEntry renders cache entry metadata.
func (f *Formatter) FormatEntry(w io.Writer, entry *cache.Entry) error {
	var lines []string

	lines = append(lines, "Key: "+entry.Key)
	lines = append(lines, "Connection: "+entry.ConnectionID)
	lines = append(lines, "SQL: "+entry.SQL)
	lines = append(lines, fmt.Sprintf("Rows: %d in %d pages (page size %d)",
		entry.RowCount, entry.PageCount, entry.PageSize))
	lines = append(lines, "Size: "+formatBytes(entry.SizeBytes))
	lines = append(lines, "Cached: "+f.humanizeAge(entry.CreatedAt))
	if entry.ExpiresAt.IsZero() {
		lines = append(lines, "Expires: never")
	} else {
		lines = append(lines, "Expires: "+entry.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if entry.Truncated {
		lines = append(lines, "Truncated: yes")
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// FormatGenerated renders a generated query without executing it.
func (f *Formatter) FormatGenerated(w io.Writer, gq *sqlgen.GeneratedQuery, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, gq)
	}

	var lines []string

	lines = append(lines, "SQL: "+gq.SQLText)
	lines = append(lines, fmt.Sprintf("Method: %s", gq.Method))
	lines = append(lines, fmt.Sprintf("Verdict: %s", gq.Verdict))
	lines = append(lines, fmt.Sprintf("Confidence: %.2f", gq.Confidence))
	lines = append(lines, "Tables: "+orDash(strings.Join(gq.Tables, ", ")))
	if gq.Reason != "" {
		lines = append(lines, "Reason: "+gq.Reason)
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// FormatSnapshot renders a schema snapshot.
func (f *Formatter) FormatSnapshot(w io.Writer, snap types.SchemaSnapshot, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, snap)
	case FormatLong:
		return f.formatSnapshotLong(w, snap)
	default:
		return f.formatSnapshotTable(w, snap)
	}
}

func (f *Formatter) formatSnapshotTable(w io.Writer, snap types.SchemaSnapshot) error {
	fmt.Fprintf(w, "Connection: %s  (%d tables, indexed %s)\n",
		snap.ConnectionID, len(snap.Tables), f.humanizeAge(snap.CreatedAt))

	if len(snap.Tables) == 0 {
		_, err := fmt.Fprintln(w, "(no tables)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"TABLE", "COLUMNS", "EST. ROWS"})
	for _, td := range snap.Tables {
		t.AppendRow(table.Row{td.Name, len(td.Columns), formatCount(td.RowEstimate)})
	}
	t.Render()

	for _, te := range snap.Errors {
		fmt.Fprintf(w, "warning: table %s: %s\n", te.Table, te.Reason)
	}
	return nil
}

func (f *Formatter) formatSnapshotLong(w io.Writer, snap types.SchemaSnapshot) error {
	var lines []string

	lines = append(lines, "Connection: "+snap.ConnectionID)
	lines = append(lines, fmt.Sprintf("Tables: %d", len(snap.Tables)))
	lines = append(lines, "Fingerprint: "+snap.Fingerprint)
	lines = append(lines, "Indexed: "+f.humanizeAge(snap.CreatedAt))

	for _, td := range snap.Tables {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("%s  (~%s rows)", td.Name, formatCount(td.RowEstimate)))
		for _, col := range td.Columns {
			line := "  " + col.Name + " " + col.Type
			if col.PrimaryKey {
				line += " (primary key)"
			}
			lines = append(lines, line)
		}
	}

	for _, te := range snap.Errors {
		lines = append(lines, fmt.Sprintf("warning: table %s: %s", te.Table, te.Reason))
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// FormatStats renders system statistics.
func (f *Formatter) FormatStats(w io.Writer, stats search.SystemStats, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, stats)
	}

	var lines []string

	lines = append(lines, fmt.Sprintf("Connections: %d configured", stats.Connections.Configured))
	if len(stats.Connections.IDs) > 0 {
		lines = append(lines, "  "+strings.Join(stats.Connections.IDs, ", "))
	}

	lines = append(lines, fmt.Sprintf("Indexed schemas: %d", len(stats.Schemas)))
	for _, s := range stats.Schemas {
		lines = append(lines, fmt.Sprintf("  %s: %d tables, indexed %s",
			s.ConnectionID, s.Tables, f.humanizeAge(s.IndexedAt)))
	}

	lines = append(lines, fmt.Sprintf("Cache (%s): %d entries, %s",
		stats.Cache.Store, stats.Cache.TotalEntries, formatBytes(stats.Cache.TotalSize)))
	lines = append(lines, fmt.Sprintf("  hits %d, misses %d (%.0f%% hit rate), productions %d, evictions %d",
		stats.Cache.Hits, stats.Cache.Misses, stats.Cache.HitRate*100,
		stats.Cache.Productions, stats.Cache.Evictions))

	docHealth := "unreachable"
	if stats.Documents.Healthy {
		docHealth = "healthy"
	}
	lines = append(lines, fmt.Sprintf("Documents: collection %s (%s)",
		orDash(stats.Documents.Collection), docHealth))
	if stats.Documents.Error != "" {
		lines = append(lines, "  "+stats.Documents.Error)
	}

	lines = append(lines, fmt.Sprintf("LLM: %s (model %s)", stats.LLM.Backend, orDash(stats.LLM.Model)))

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// FormatCacheStats renders cache effectiveness counters on their own, for
// displays that don't need the full system summary.
func (f *Formatter) FormatCacheStats(w io.Writer, stats cache.Stats, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, stats)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Store: %s", stats.Store))
	lines = append(lines, fmt.Sprintf("Entries: %d (%s)", stats.TotalEntries, formatBytes(stats.TotalSize)))
	lines = append(lines, fmt.Sprintf("Hits: %d", stats.Hits))
	lines = append(lines, fmt.Sprintf("Misses: %d", stats.Misses))
	lines = append(lines, fmt.Sprintf("Hit rate: %.0f%%", stats.HitRate*100))
	lines = append(lines, fmt.Sprintf("Productions: %d", stats.Productions))
	lines = append(lines, fmt.Sprintf("Evictions: %d", stats.Evictions))

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// FormatConnections renders the registry listing.
func (f *Formatter) FormatConnections(w io.Writer, rows []ConnectionRow, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "(no connections configured)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "DIALECT", "TARGET"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.ID, r.Dialect, r.Target})
	}
	t.Render()
	return nil
}

// ConnectionRow is one row of the registry listing.
type ConnectionRow struct {
	ID      string `json:"id"`
	Dialect string `json:"dialect"`
	Target  string `json:"target"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// humanizeAge converts a time to a human-readable age string
func (f *Formatter) humanizeAge(t time.Time) string {
	if t.IsZero() {
		return "?"
	}

	days := int(time.Since(t).Hours() / 24)

	if days < 1 {
		return "today"
	} else if days == 1 {
		return "1 day ago"
	} else if days < 30 {
		return fmt.Sprintf("%d days ago", days)
	} else if days < 365 {
		months := days / 30
		if months == 1 {
			return "1 month ago"
		}

		return fmt.Sprintf("%d months ago", months)
	}

	years := days / 365
	if years == 1 {
		return "1 year ago"
	}

	return fmt.Sprintf("%d years ago", years)
}

func cellValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if val, ok := v.(float64); ok && val == float64(int64(val)) {
		return strconv.FormatInt(int64(val), 10)
	}
	return fmt.Sprintf("%v", v)
}

func formatCount(n int64) string {
	if n < 0 {
		return "?"
	}
	return strconv.FormatInt(n, 10)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
