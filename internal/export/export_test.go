package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedsearch/fedsearch/internal/cache"
	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/search"
)

func sampleResponse() *search.SearchResponse {
	return &search.SearchResponse{
		RequestID: "req-42",
		Query:     "recent orders",
		Results: []search.Result{
			{
				Source:          search.SourceSQL,
				OriginID:        "fedsearch:qcache:sales:ab12",
				Title:           "sales.orders",
				Snippet:         "Columns: id, name\nRows: 2",
				RawScore:        0.9,
				NormalizedScore: 1.0,
				Payload:         map[string]any{"row_count": 2},
			},
			{
				Source:          search.SourceDoc,
				OriginID:        "doc-1",
				Title:           "docs/orders.md",
				Snippet:         "Order flow overview.",
				RawScore:        0.4,
				NormalizedScore: 1.0,
				Payload:         map[string]any{"file_path": "docs/orders.md"},
			},
		},
		SQL: &search.SQLResult{
			Entry: &cache.Entry{Columns: []string{"id", "name"}, RowCount: 2},
			Page: &cache.Page{
				Columns: []string{"id", "name"},
				Rows:    [][]any{{float64(1), "alpha"}, {float64(2), "beta"}},
			},
		},
	}
}

func TestWriteCSVFlattensResults(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewExporter(nil)

	require.NoError(t, exporter.WriteResponse(&buf, sampleResponse(), "csv"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4, "header, two relational rows, one document row")

	assert.Equal(t, []string{"id", "name", "content", "_source", "_relevance"}, records[0])
	assert.Equal(t, []string{"1", "alpha", "", "sales.orders", "1"}, records[1])
	assert.Equal(t, []string{"2", "beta", "", "sales.orders", "1"}, records[2])
	assert.Equal(t, []string{"", "", "Order flow overview.", "docs/orders.md", "1"}, records[3])
}

func TestWriteCSVRelationalOnlyOmitsContentColumn(t *testing.T) {
	resp := sampleResponse()
	resp.Results = resp.Results[:1]
	var buf bytes.Buffer

	require.NoError(t, NewExporter(nil).WriteResponse(&buf, resp, ""))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "_source", "_relevance"}, records[0])
	require.Len(t, records, 3)
}

func TestWriteJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewExporter(nil).WriteResponse(&buf, sampleResponse(), "json"))

	var items []exportedResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 2)

	assert.Equal(t, "fedsearch:qcache:sales:ab12", items[0].ID)
	assert.Equal(t, "doc-1", items[1].ID)
	assert.Equal(t, "sql", items[0].Type)
	assert.Equal(t, "doc", items[1].Type)
	assert.Equal(t, 1.0, items[0].Relevance)

	records, ok := items[0].Data.([]any)
	require.True(t, ok, "relational data exports as a record list")
	require.Len(t, records, 2)
	first, ok := records[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alpha", first["name"])

	docData, ok := items[1].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Order flow overview.", docData["content"])
}

func TestWriteParquetOneRowPerResult(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewExporter(nil).WriteResponse(&buf, sampleResponse(), "parquet"))
	require.NotEmpty(t, buf.Bytes())

	reader := parquet.NewGenericReader[parquetResult](bytes.NewReader(buf.Bytes()))
	defer func() { _ = reader.Close() }()

	rows := make([]parquetResult, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		require.NoError(t, err)
	}
	require.Equal(t, 2, count)

	assert.Equal(t, "req-42", rows[0].RequestID)
	assert.Equal(t, int32(1), rows[0].Rank)
	assert.Equal(t, "fedsearch:qcache:sales:ab12", rows[0].OriginID)
	assert.Equal(t, int32(2), rows[1].Rank)
	assert.Equal(t, "doc-1", rows[1].OriginID)
	assert.Contains(t, rows[1].PayloadJSON, "docs/orders.md")
}

func TestWriteResponseRejectsUnknownFormat(t *testing.T) {
	err := NewExporter(nil).WriteResponse(&bytes.Buffer{}, sampleResponse(), "xlsx")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestWriteResponseRejectsNilResponse(t *testing.T) {
	err := NewExporter(nil).WriteResponse(&bytes.Buffer{}, nil, "csv")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestUploadWithoutSink(t *testing.T) {
	_, err := NewExporter(nil).Upload(context.Background(), sampleResponse(), "csv")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnavailable))
}
