package cache

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

const scanBatchSize = 100

// RedisStore backs the cache with a shared Redis instance so multiple engine
// processes can serve from one namespace. Expiry is delegated to Redis TTLs
// and invalidation uses prefix scans.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore wraps an existing client. The namespace is the key prefix
// that scopes Len and TotalSize to this store's keys.
func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.Newf(apperrors.ErrTypeCacheMiss, "key %q not cached", key)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeConnection, "redis get")
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeConnection, "redis set")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeConnection, "redis del")
	}
	return nil
}

func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scanKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrTypeConnection, "redis del")
	}
	return len(keys), nil
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.scanKeys(ctx, prefix)
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx, s.namespace)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *RedisStore) TotalSize(ctx context.Context) (int64, error) {
	keys, err := s.scanKeys(ctx, s.namespace)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		n, err := s.client.StrLen(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return 0, apperrors.Wrap(err, apperrors.ErrTypeConnection, "redis strlen")
		}
		total += n
	}
	return total, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) scanKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeConnection, "redis scan")
	}
	sort.Strings(keys)
	return keys, nil
}
