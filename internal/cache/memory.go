package cache

import (
	"container/list"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/metrics"
)

// MemoryStore keeps serialized entries in process memory with TTL expiry and
// least-recently-used eviction once the total byte size exceeds maxBytes.
// A maxBytes of zero disables the size budget.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	totalBytes int64
	maxBytes   int64
	evictions  int64
	now        func() time.Time

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

type memoryEntry struct {
	key       string
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore returns a store bounded to maxBytes. When cleanupFreq is
// positive a background goroutine sweeps expired entries on that interval
// until Close is called.
func NewMemoryStore(maxBytes int64, cleanupFreq time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		maxBytes:    maxBytes,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go s.backgroundCleanup(cleanupFreq)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrTypeCacheMiss, "key %q not cached", key)
	}
	entry := elem.Value.(*memoryEntry)
	if s.expiredLocked(entry) {
		s.removeLocked(elem)
		s.countEvictionsLocked(1)
		return nil, apperrors.Newf(apperrors.ErrTypeCacheMiss, "key %q expired", key)
	}
	s.order.MoveToFront(elem)
	return entry.data, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		s.totalBytes += int64(len(data)) - int64(len(entry.data))
		entry.data = data
		entry.expiresAt = expiresAt
		s.order.MoveToFront(elem)
	} else {
		s.entries[key] = s.order.PushFront(&memoryEntry{key: key, data: data, expiresAt: expiresAt})
		s.totalBytes += int64(len(data))
	}

	s.evictOverBudgetLocked()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.removeLocked(elem)
	}
	return nil
}

func (s *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, elem := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.removeLocked(elem)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *MemoryStore) TotalSize(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes, nil
}

// Evictions reports how many entries were dropped by TTL expiry or size
// pressure since the store was created.
func (s *MemoryStore) Evictions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

// Close stops the background sweeper. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *MemoryStore) backgroundCleanup(freq time.Duration) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, elem := range s.entries {
		if s.expiredLocked(elem.Value.(*memoryEntry)) {
			s.removeLocked(elem)
			removed++
		}
	}
	s.countEvictionsLocked(removed)
}

// evictOverBudgetLocked drops least-recently-used entries until the store
// fits its byte budget again. The entry just written always survives.
func (s *MemoryStore) evictOverBudgetLocked() {
	if s.maxBytes <= 0 {
		return
	}
	evicted := 0
	for s.totalBytes > s.maxBytes && s.order.Len() > 1 {
		s.removeLocked(s.order.Back())
		evicted++
	}
	s.countEvictionsLocked(evicted)
}

func (s *MemoryStore) expiredLocked(entry *memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}

func (s *MemoryStore) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	s.order.Remove(elem)
	delete(s.entries, entry.key)
	s.totalBytes -= int64(len(entry.data))
}

func (s *MemoryStore) countEvictionsLocked(n int) {
	if n > 0 {
		s.evictions += int64(n)
		metrics.IncrementCacheEvictions(n)
	}
}
