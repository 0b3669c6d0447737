// Package export serializes search responses to CSV, JSON and Parquet, and
// can push the artifact to an S3-compatible object store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/fedsearch/fedsearch/internal/config"
	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/search"
)

// Formats accepted by WriteResponse.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

var _ search.ResponseExporter = (*Exporter)(nil)

// Exporter writes search responses in the supported formats. The object
// sink is optional; without one Upload reports unavailable.
type Exporter struct {
	sink *ObjectSink
}

// New builds an exporter from configuration. The S3 sink is wired only when
// an endpoint is configured.
func New(cfg config.ExportConfig) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return &Exporter{}, nil
	}
	sink, err := NewObjectSink(SinkConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &Exporter{sink: sink}, nil
}

// NewExporter builds an exporter around an existing sink. sink may be nil.
func NewExporter(sink *ObjectSink) *Exporter {
	return &Exporter{sink: sink}
}

// WriteResponse writes resp to w in the named format. An empty format
// defaults to CSV.
func (e *Exporter) WriteResponse(w io.Writer, resp *search.SearchResponse, format string) error {
	if resp == nil {
		return apperrors.New(apperrors.ErrTypeValidation, "nothing to export")
	}
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return writeCSV(w, resp)
	case FormatJSON:
		return writeJSON(w, resp)
	case FormatParquet:
		return writeParquet(w, resp)
	default:
		return apperrors.Newf(apperrors.ErrTypeValidation, "unsupported export format %q", format).
			WithSuggestion("Supported formats: csv, json, parquet")
	}
}

// Upload serializes resp and puts the artifact in the configured bucket,
// returning the object key.
func (e *Exporter) Upload(ctx context.Context, resp *search.SearchResponse, format string) (string, error) {
	if e.sink == nil {
		return "", apperrors.New(apperrors.ErrTypeUnavailable, "no object store configured").
			WithSuggestion("Set FEDSEARCH_EXPORT_S3_ENDPOINT to enable uploads")
	}
	var buf bytes.Buffer
	if err := e.WriteResponse(&buf, resp, format); err != nil {
		return "", err
	}
	return e.sink.Put(ctx, resp.RequestID, format, buf.Bytes())
}

// writeCSV flattens the response into one table. Relational rows expand to
// one record each; document hits become a single record with a content
// column. Every record carries _source and _relevance.
func writeCSV(w io.Writer, resp *search.SearchResponse) error {
	var sqlColumns []string
	if resp.SQL != nil && resp.SQL.Page != nil {
		sqlColumns = resp.SQL.Page.Columns
	}
	hasContent := false
	for _, r := range resp.Results {
		if r.Source != search.SourceSQL || resp.SQL == nil || resp.SQL.Page == nil {
			hasContent = true
		}
	}

	header := make([]string, 0, len(sqlColumns)+3)
	header = append(header, sqlColumns...)
	if hasContent {
		header = append(header, "content")
	}
	header = append(header, "_source", "_relevance")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeInternal, "write csv header")
	}

	for _, r := range resp.Results {
		source := r.Title
		if source == "" {
			source = r.OriginID
		}
		relevance := strconv.FormatFloat(r.NormalizedScore, 'g', -1, 64)

		if r.Source == search.SourceSQL && resp.SQL != nil && resp.SQL.Page != nil {
			for _, row := range resp.SQL.Page.Rows {
				record := make([]string, 0, len(header))
				for i := range sqlColumns {
					if i < len(row) {
						record = append(record, csvValue(row[i]))
					} else {
						record = append(record, "")
					}
				}
				if hasContent {
					record = append(record, "")
				}
				record = append(record, source, relevance)
				if err := cw.Write(record); err != nil {
					return apperrors.Wrap(err, apperrors.ErrTypeInternal, "write csv record")
				}
			}
			continue
		}

		record := make([]string, len(sqlColumns), len(header))
		record = append(record, r.Snippet, source, relevance)
		if err := cw.Write(record); err != nil {
			return apperrors.Wrap(err, apperrors.ErrTypeInternal, "write csv record")
		}
	}

	cw.Flush()
	return cw.Error()
}

type exportedResult struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Type      string         `json:"type"`
	Relevance float64        `json:"relevance"`
	Data      any            `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// writeJSON emits the results as an array in fused order. Relational data
// rides as a record list keyed by column name, document data as its snippet.
func writeJSON(w io.Writer, resp *search.SearchResponse) error {
	items := make([]exportedResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := exportedResult{
			ID:        r.OriginID,
			Source:    r.Title,
			Type:      r.Source,
			Relevance: r.NormalizedScore,
			Metadata:  r.Payload,
		}
		if r.Source == search.SourceSQL && resp.SQL != nil && resp.SQL.Page != nil {
			item.Data = pageRecords(resp.SQL.Page.Columns, resp.SQL.Page.Rows)
		} else {
			item.Data = map[string]any{"content": r.Snippet}
		}
		items = append(items, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeInternal, "encode json export")
	}
	return nil
}

func pageRecords(columns []string, rows [][]any) []map[string]any {
	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

type parquetResult struct {
	RequestID   string  `parquet:"request_id"`
	Rank        int32   `parquet:"rank"`
	Source      string  `parquet:"source"`
	OriginID    string  `parquet:"origin_id"`
	Title       string  `parquet:"title"`
	Snippet     string  `parquet:"snippet"`
	RawScore    float64 `parquet:"raw_score"`
	Relevance   float64 `parquet:"relevance"`
	PayloadJSON string  `parquet:"payload_json"`
}

// writeParquet emits one row per fused result.
func writeParquet(w io.Writer, resp *search.SearchResponse) error {
	rows := make([]parquetResult, 0, len(resp.Results))
	for i, r := range resp.Results {
		row := parquetResult{
			RequestID: resp.RequestID,
			Rank:      int32(i + 1),
			Source:    r.Source,
			OriginID:  r.OriginID,
			Title:     r.Title,
			Snippet:   r.Snippet,
			RawScore:  r.RawScore,
			Relevance: r.NormalizedScore,
		}
		if len(r.Payload) > 0 {
			payload, err := json.Marshal(r.Payload)
			if err != nil {
				return apperrors.Wrapf(err, apperrors.ErrTypeInternal, "encode payload for %s", r.OriginID)
			}
			row.PayloadJSON = string(payload)
		}
		rows = append(rows, row)
	}

	writer := parquet.NewGenericWriter[parquetResult](w)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return apperrors.Wrap(err, apperrors.ErrTypeInternal, "write parquet rows")
		}
	}
	if err := writer.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeInternal, "close parquet writer")
	}
	return nil
}

func csvValue(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
