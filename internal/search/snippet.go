package search

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/fedsearch/fedsearch/internal/cache"
	"github.com/fedsearch/fedsearch/internal/vector"
)

const (
	snippetMaxRunes = 200
	previewRows     = 3
	previewColumns  = 5
)

// htmlTagPattern detects markup in document payloads. Scraped corpora mix
// plain text and HTML chunks in the same collection.
var htmlTagPattern = regexp.MustCompile(`(?i)<(?:html|head|body|div|p|br|span|h[1-6]|ul|ol|li|table|tr|td|a|img|strong|em|b|i|code|pre|blockquote)\b`)

// docResult converts one vector hit into a search result. The payload keys
// follow the ingestion convention: file_path names the source document and
// content carries the chunk text.
func docResult(hit vector.Hit) Result {
	title, snippet := shapePayload(hit.Payload)
	return Result{
		Source:   SourceDoc,
		OriginID: hit.ID,
		Title:    title,
		Snippet:  snippet,
		RawScore: hit.Score,
		Payload:  hit.Payload,
	}
}

// shapePayload extracts a display title and a bounded plain-text snippet
// from a document payload. HTML content is converted to markdown before
// truncation so tags never leak into the snippet.
func shapePayload(payload map[string]any) (title, snippet string) {
	title = firstString(payload, "file_path", "title", "source", "name", "doc_id")
	content := firstString(payload, "content", "text", "body", "chunk", "snippet")
	if content == "" {
		return title, ""
	}
	if htmlTagPattern.MatchString(content) {
		if md, err := htmltomarkdown.ConvertString(content); err == nil {
			content = md
		}
	}
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) > snippetMaxRunes {
		content = string(runes[:snippetMaxRunes]) + "..."
	}
	return title, content
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// rowSetPreview summarizes a cached result set for display: the column list,
// the total row count and the first few rows.
func rowSetPreview(entry *cache.Entry, page *cache.Page) string {
	if entry == nil || entry.RowCount == 0 {
		return "No data"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(entry.Columns, ", "))
	fmt.Fprintf(&b, "Rows: %d", entry.RowCount)

	if page == nil {
		return b.String()
	}
	shown := len(page.Rows)
	if shown > previewRows {
		shown = previewRows
	}
	for i := 0; i < shown; i++ {
		pairs := make([]string, 0, previewColumns)
		for j, col := range entry.Columns {
			if j >= previewColumns || j >= len(page.Rows[i]) {
				break
			}
			pairs = append(pairs, col+"="+formatValue(page.Rows[i][j]))
		}
		fmt.Fprintf(&b, "\nRow %d: %s", i+1, strings.Join(pairs, ", "))
	}
	if entry.RowCount > shown {
		fmt.Fprintf(&b, "\n... and %d more rows", entry.RowCount-shown)
	}
	return b.String()
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	switch val := v.(type) {
	case float64:
		// JSON decoding widens every number; render integral values
		// without a fraction.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
