package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

const defaultQdrantTimeout = 15 * time.Second

// QdrantStore talks to a Qdrant collection over its REST API.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// QdrantConfig parameterizes the store.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	baseURL := strings.TrimRight(cfg.URL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "documents"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultQdrantTimeout
	}

	return &QdrantStore{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type qdrantSearchRequest struct {
	Vector      []float32      `json:"vector"`
	Limit       int            `json:"limit"`
	WithPayload bool           `json:"with_payload"`
	Filter      map[string]any `json:"filter,omitempty"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload map[string]any  `json:"payload"`
	} `json:"result"`
}

// Query posts to the points/search endpoint and maps the results. Point ids
// may be integers or strings in Qdrant; both are normalized to strings.
func (s *QdrantStore) Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}

	body, err := json.Marshal(qdrantSearchRequest{
		Vector:      vec,
		Limit:       topK,
		WithPayload: true,
		Filter:      filter,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeInternal, "marshaling vector query")
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, s.collection)

	respBody, err := s.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var parsed qdrantSearchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeExecution, "parsing vector store response")
	}

	hits := make([]Hit, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		hits = append(hits, Hit{
			ID:      decodePointID(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}

	return hits, nil
}

// Healthy fetches the collection description, which checks reachability and
// collection existence in one round trip.
func (s *QdrantStore) Healthy(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)

	_, err := s.do(ctx, http.MethodGet, url, nil)

	return err
}

func (s *QdrantStore) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeInternal, "creating vector store request")
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrTypeTimeout, "vector store request cancelled")
		}

		return nil, apperrors.Wrap(err, apperrors.ErrTypeConnection, "vector store unreachable")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeExecution, "reading vector store response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.ErrTypeExecution,
			"vector store error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return respBody, nil
}

func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}
