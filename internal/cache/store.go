package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
)

// Namespaces used by the analysis pipeline
const (
	NamespaceReconciled = "reconciled-user-data"
	NamespaceAnalysis   = "analysis-record"
)

// Entry is one cached payload and the time it was written
type Entry struct {
	Data     []byte    `json:"data"`
	StoredAt time.Time `json:"stored_at"`
}

func (e *Entry) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) > ttl
}

// Tier is a durable secondary store behind the in-memory primary. Get returns
// nil, nil for a missing key. Set must replace a key atomically.
type Tier interface {
	Get(ctx context.Context, namespace, id string) (*Entry, error)
	Set(ctx context.Context, namespace, id string, entry Entry) error
	Delete(ctx context.Context, namespace, id string) error
	Keys(ctx context.Context, namespace string) ([]string, error)
	Clear(ctx context.Context, namespace string) error
}

// Store is a TTL-keyed cache for a single namespace. Expiry is checked lazily
// on read; nothing is evicted in the background. Concurrent writes to the same
// id are last-write-wins.
type Store struct {
	namespace string
	ttl       time.Duration
	now       func() time.Time
	secondary Tier
	logger    *monitoring.Logger
	metrics   *monitoring.Metrics

	mu    sync.RWMutex
	items map[string]*Entry

	hits    atomic.Int64
	misses  atomic.Int64
	updates atomic.Int64
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSecondary backs the store with a durable tier
func WithSecondary(tier Tier) Option {
	return func(s *Store) { s.secondary = tier }
}

// WithLogger sets the logger used for tier failures and cache operations
func WithLogger(logger *monitoring.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics reports hits and misses to the process-wide counters
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

// NewStore creates a store for namespace whose entries live for ttl
func NewStore(namespace string, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		namespace: namespace,
		ttl:       ttl,
		now:       time.Now,
		logger:    monitoring.NopLogger(),
		items:     make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the namespace this store owns
func (s *Store) Namespace() string { return s.namespace }

// TTL returns the entry lifetime
func (s *Store) TTL() time.Duration { return s.ttl }

// Get returns the payload for id if present and unexpired. Expired entries are
// deleted from both tiers and counted as misses.
func (s *Store) Get(ctx context.Context, id string) ([]byte, bool) {
	entry, ok := s.lookup(ctx, id)
	if !ok {
		s.recordMiss(id)
		return nil, false
	}
	s.recordHit(id)
	return entry.Data, true
}

// GetEntry is Get but also returns the write time
func (s *Store) GetEntry(ctx context.Context, id string) (*Entry, bool) {
	entry, ok := s.lookup(ctx, id)
	if !ok {
		s.recordMiss(id)
		return nil, false
	}
	s.recordHit(id)
	return entry, true
}

func (s *Store) lookup(ctx context.Context, id string) (*Entry, bool) {
	now := s.now()

	s.mu.RLock()
	entry, exists := s.items[id]
	s.mu.RUnlock()

	if exists {
		if !entry.expired(now, s.ttl) {
			return entry, true
		}
		s.evictLocal(id, entry)
	}

	if s.secondary == nil {
		return nil, false
	}

	stored, err := s.secondary.Get(ctx, s.namespace, id)
	if err != nil {
		s.logger.Warn("Secondary cache read failed", "namespace", s.namespace, "id", id, "error", err)
		return nil, false
	}
	if stored == nil {
		return nil, false
	}
	if stored.expired(now, s.ttl) {
		s.deleteSecondary(ctx, id)
		return nil, false
	}

	s.mu.Lock()
	if current, ok := s.items[id]; !ok || current.StoredAt.Before(stored.StoredAt) {
		s.items[id] = stored
	}
	s.mu.Unlock()
	return stored, true
}

// Set stores payload under id, stamped with the current time. The primary is
// always updated; a secondary failure is returned after that.
func (s *Store) Set(ctx context.Context, id string, payload []byte) error {
	entry := &Entry{Data: payload, StoredAt: s.now()}

	s.mu.Lock()
	s.items[id] = entry
	size := len(s.items)
	s.mu.Unlock()

	s.updates.Add(1)
	s.logger.CacheLogger(s.namespace, "set", id, false, size)

	if s.secondary != nil {
		if err := s.secondary.Set(ctx, s.namespace, id, *entry); err != nil {
			return apperrors.WrapError(err, "write %s/%s to secondary", s.namespace, id)
		}
	}
	return nil
}

// Delete removes id from both tiers
func (s *Store) Delete(ctx context.Context, id string) {
	s.deleteLocal(id)
	s.deleteSecondary(ctx, id)
}

func (s *Store) deleteLocal(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// evictLocal removes id only while it still maps to the expired entry, so a
// concurrent Set is kept.
func (s *Store) evictLocal(id string, expired *Entry) {
	s.mu.Lock()
	if s.items[id] == expired {
		delete(s.items, id)
	}
	s.mu.Unlock()
}

func (s *Store) deleteSecondary(ctx context.Context, id string) {
	if s.secondary == nil {
		return
	}
	if err := s.secondary.Delete(ctx, s.namespace, id); err != nil {
		s.logger.Warn("Secondary cache delete failed", "namespace", s.namespace, "id", id, "error", err)
	}
}

// Clear empties both tiers for this namespace
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.items = make(map[string]*Entry)
	s.mu.Unlock()

	if s.secondary != nil {
		return s.secondary.Clear(ctx, s.namespace)
	}
	return nil
}

// Keys lists the ids held by either tier, sorted. Expired entries that have
// not been read yet are included.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	s.mu.RLock()
	for id := range s.items {
		seen[id] = struct{}{}
	}
	s.mu.RUnlock()

	if s.secondary != nil {
		ids, err := s.secondary.Keys(ctx, s.namespace)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for id := range seen {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys, nil
}

// Size returns the number of entries in the primary tier
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// GetJSON decodes the payload for id into v. A payload that fails to decode
// is deleted, counted as a miss, and reported as a cache-corrupt error.
func (s *Store) GetJSON(ctx context.Context, id string, v interface{}) (bool, error) {
	entry, ok := s.lookup(ctx, id)
	if !ok {
		s.recordMiss(id)
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, v); err != nil {
		s.Delete(ctx, id)
		s.recordMiss(id)
		return false, apperrors.NewCacheCorruptError(s.namespace, id, err)
	}

	s.recordHit(id)
	return true, nil
}

// SetJSON encodes v and stores it under id
func (s *Store) SetJSON(ctx context.Context, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.WrapError(err, "encode %s/%s", s.namespace, id)
	}
	return s.Set(ctx, id, data)
}

func (s *Store) recordHit(id string) {
	s.hits.Add(1)
	if s.metrics != nil {
		s.metrics.IncrementCacheHit()
	}
	s.logger.CacheLogger(s.namespace, "get", id, true, s.Size())
}

func (s *Store) recordMiss(id string) {
	s.misses.Add(1)
	if s.metrics != nil {
		s.metrics.IncrementCacheMiss()
	}
	s.logger.CacheLogger(s.namespace, "get", id, false, s.Size())
}

// Stats are the counters of one or more stores
type Stats struct {
	Hits    int64          `json:"hits"`
	Misses  int64          `json:"misses"`
	Updates int64          `json:"updates"`
	HitRate float64        `json:"hit_rate"`
	Sizes   map[string]int `json:"sizes"`
}

// Stats returns this store's counters
func (s *Store) Stats() Stats {
	return CombinedStats(s)
}

// CombinedStats sums the counters of several stores, keeping sizes per namespace
func CombinedStats(stores ...*Store) Stats {
	stats := Stats{Sizes: make(map[string]int, len(stores))}
	for _, s := range stores {
		stats.Hits += s.hits.Load()
		stats.Misses += s.misses.Load()
		stats.Updates += s.updates.Load()
		stats.Sizes[s.namespace] = s.Size()
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
