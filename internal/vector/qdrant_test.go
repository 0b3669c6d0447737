package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

func TestQdrantStore_Query(t *testing.T) {
	var gotPath string
	var gotReq qdrantSearchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		fmt.Fprint(w, `{"result":[
			{"id":"doc-7","score":0.92,"payload":{"title":"Quarterly report"}},
			{"id":42,"score":0.71,"payload":{"title":"Sensor manual"}}
		],"status":"ok"}`)
	}))
	defer server.Close()

	store := NewQdrantStore(QdrantConfig{URL: server.URL, Collection: "kb"})

	hits, err := store.Query(context.Background(), []float32{0.1, 0.2}, 5,
		map[string]any{"must": []any{map[string]any{"key": "lang", "match": map[string]any{"value": "en"}}}})
	require.NoError(t, err)

	assert.Equal(t, "/collections/kb/points/search", gotPath)
	assert.Equal(t, 5, gotReq.Limit)
	assert.True(t, gotReq.WithPayload)
	assert.NotNil(t, gotReq.Filter, "filter should pass through to the store")

	require.Len(t, hits, 2)
	assert.Equal(t, "doc-7", hits[0].ID)
	assert.InDelta(t, 0.92, hits[0].Score, 1e-9)
	assert.Equal(t, "Quarterly report", hits[0].Payload["title"])
	assert.Equal(t, "42", hits[1].ID, "integer point ids should normalize to strings")
}

func TestQdrantStore_QueryDefaultsTopK(t *testing.T) {
	var gotReq qdrantSearchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"result":[]}`)
	}))
	defer server.Close()

	store := NewQdrantStore(QdrantConfig{URL: server.URL})

	hits, err := store.Query(context.Background(), []float32{1}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 10, gotReq.Limit)
}

func TestQdrantStore_QueryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":{"error":"collection not found"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	store := NewQdrantStore(QdrantConfig{URL: server.URL, Collection: "missing"})

	_, err := store.Query(context.Background(), []float32{1}, 3, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeExecution))
	assert.Contains(t, err.Error(), "collection not found")
}

func TestQdrantStore_Healthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/kb" {
			fmt.Fprint(w, `{"result":{"status":"green"}}`)
			return
		}

		http.NotFound(w, r)
	}))
	defer server.Close()

	healthy := NewQdrantStore(QdrantConfig{URL: server.URL, Collection: "kb"})
	assert.NoError(t, healthy.Healthy(context.Background()))

	missing := NewQdrantStore(QdrantConfig{URL: server.URL, Collection: "absent"})
	assert.Error(t, missing.Healthy(context.Background()))
}

func TestQdrantStore_Unreachable(t *testing.T) {
	store := NewQdrantStore(QdrantConfig{URL: "http://127.0.0.1:1", Collection: "kb"})

	err := store.Healthy(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
}
