// Package cache provides a read-through result cache for federated query
// execution. The manager pairs a byte-level Store backend with singleflight
// production so concurrent requests for the same missing key run the
// underlying query exactly once. Results are paginated at write time and
// read back page by page.
package cache

import (
	"context"
	"time"
)

// Store is the byte-level backend behind the cache manager. Implementations
// must be safe for concurrent use. Get returns an ErrTypeCacheMiss error for
// absent or expired keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Len(ctx context.Context) (int, error)
	TotalSize(ctx context.Context) (int64, error)
	Close() error
}

// evictionCounter is implemented by stores that track their own evictions.
// The Redis store does not; Redis expires keys internally.
type evictionCounter interface {
	Evictions() int64
}
