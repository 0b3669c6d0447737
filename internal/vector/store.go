package vector

import "context"

// Hit is one scored point returned by the document tier.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Store answers nearest-neighbor queries against the document collection.
// Implementations must be safe for concurrent use.
type Store interface {
	// Query returns the topK closest points to vec, optionally narrowed by
	// a store-native filter.
	Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]Hit, error)

	// Healthy verifies the store is reachable and the collection exists.
	Healthy(ctx context.Context) error
}
