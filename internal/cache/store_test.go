package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryTier is an in-process Tier for tests
type memoryTier struct {
	mu      sync.Mutex
	entries map[string]Entry
	failGet bool
}

func newMemoryTier() *memoryTier {
	return &memoryTier{entries: make(map[string]Entry)}
}

func (m *memoryTier) Get(_ context.Context, ns, id string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("tier down")
	}
	e, ok := m.entries[ns+"/"+id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memoryTier) Set(_ context.Context, ns, id string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[ns+"/"+id] = e
	return nil
}

func (m *memoryTier) Delete(_ context.Context, ns, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, ns+"/"+id)
	return nil
}

func (m *memoryTier) Keys(_ context.Context, ns string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for k := range m.entries {
		if len(k) > len(ns)+1 && k[:len(ns)+1] == ns+"/" {
			ids = append(ids, k[len(ns)+1:])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryTier) Clear(_ context.Context, ns string) error {
	ids, _ := m.Keys(context.Background(), ns)
	for _, id := range ids {
		_ = m.Delete(context.Background(), ns, id)
	}
	return nil
}

func (m *memoryTier) has(ns, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[ns+"/"+id]
	return ok
}

func TestStore_ExpiresLazilyOnRead(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewStore(NamespaceAnalysis, time.Hour, WithClock(clock.Now))

	require.NoError(t, store.Set(ctx, "42", []byte(`"v"`)))

	clock.Advance(time.Hour)
	data, ok := store.Get(ctx, "42")
	require.True(t, ok, "an entry exactly TTL old is still valid")
	assert.Equal(t, []byte(`"v"`), data)

	clock.Advance(time.Second)
	data, ok = store.Get(ctx, "42")
	assert.False(t, ok)
	assert.Nil(t, data)
	assert.Equal(t, 0, store.Size(), "expired entry is removed on read")

	stats := store.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Updates)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestStore_ExpiredEvictionKeepsNewerEntry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewStore(NamespaceAnalysis, time.Hour, WithClock(clock.Now))

	require.NoError(t, store.Set(ctx, "42", []byte("old")))
	store.mu.RLock()
	stale := store.items["42"]
	store.mu.RUnlock()

	// a reader saw the stale entry expire, then a writer replaced it
	clock.Advance(2 * time.Hour)
	require.True(t, stale.expired(clock.Now(), store.TTL()))
	require.NoError(t, store.Set(ctx, "42", []byte("new")))

	store.evictLocal("42", stale)

	data, ok := store.Get(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), data)

	store.mu.RLock()
	current := store.items["42"]
	store.mu.RUnlock()
	clock.Advance(2 * time.Hour)
	store.evictLocal("42", current)
	assert.Equal(t, 0, store.Size())
}

func TestStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NamespaceReconciled, time.Hour)

	require.NoError(t, store.Set(ctx, "1", []byte("first")))
	require.NoError(t, store.Set(ctx, "1", []byte("second")))

	data, ok := store.Get(ctx, "1")
	require.True(t, ok)
	assert.Equal(t, []byte("second"), data)
	assert.Equal(t, int64(2), store.Stats().Updates)
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	tier := newMemoryTier()
	store := NewStore(NamespaceReconciled, time.Hour, WithSecondary(tier))

	require.NoError(t, store.Set(ctx, "1", []byte("a")))
	require.NoError(t, store.Set(ctx, "2", []byte("b")))

	store.Delete(ctx, "1")
	_, ok := store.Get(ctx, "1")
	assert.False(t, ok)
	assert.False(t, tier.has(NamespaceReconciled, "1"))

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Size())
	assert.False(t, tier.has(NamespaceReconciled, "2"))
}

func TestStore_SecondaryHitPopulatesPrimary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tier := newMemoryTier()
	require.NoError(t, tier.Set(ctx, NamespaceAnalysis, "7", Entry{Data: []byte("durable"), StoredAt: clock.Now()}))

	store := NewStore(NamespaceAnalysis, time.Hour, WithClock(clock.Now), WithSecondary(tier))
	assert.Equal(t, 0, store.Size())

	data, ok := store.Get(ctx, "7")
	require.True(t, ok)
	assert.Equal(t, []byte("durable"), data)
	assert.Equal(t, 1, store.Size())

	tier.failGet = true
	_, ok = store.Get(ctx, "7")
	assert.True(t, ok, "primary serves the entry without the secondary")
}

func TestStore_ExpiredSecondaryEntryDeleted(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tier := newMemoryTier()
	require.NoError(t, tier.Set(ctx, NamespaceAnalysis, "7", Entry{Data: []byte("old"), StoredAt: clock.Now().Add(-2 * time.Hour)}))

	store := NewStore(NamespaceAnalysis, time.Hour, WithClock(clock.Now), WithSecondary(tier))

	_, ok := store.Get(ctx, "7")
	assert.False(t, ok)
	assert.False(t, tier.has(NamespaceAnalysis, "7"))
}

func TestStore_SecondaryFailureIsMiss(t *testing.T) {
	tier := newMemoryTier()
	tier.failGet = true
	store := NewStore(NamespaceAnalysis, time.Hour, WithSecondary(tier))

	_, ok := store.Get(context.Background(), "9")
	assert.False(t, ok)
	assert.Equal(t, int64(1), store.Stats().Misses)
}

func TestStore_JSON(t *testing.T) {
	type record struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	ctx := context.Background()
	store := NewStore(NamespaceAnalysis, time.Hour)

	require.NoError(t, store.SetJSON(ctx, "1", record{Name: "alice", Score: 40}))

	var got record
	found, err := store.GetJSON(ctx, "1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record{Name: "alice", Score: 40}, got)

	found, err = store.GetJSON(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_CorruptJSONDeleted(t *testing.T) {
	ctx := context.Background()
	tier := newMemoryTier()
	store := NewStore(NamespaceAnalysis, time.Hour, WithSecondary(tier))
	require.NoError(t, store.Set(ctx, "bad", []byte("{not json")))

	var v map[string]interface{}
	found, err := store.GetJSON(ctx, "bad", &v)

	assert.False(t, found)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryCacheCorrupt))
	assert.Equal(t, 0, store.Size())
	assert.False(t, tier.has(NamespaceAnalysis, "bad"))
	assert.Equal(t, int64(1), store.Stats().Misses)
	assert.Equal(t, int64(0), store.Stats().Hits)
}

func TestStore_KeysUnionsTiers(t *testing.T) {
	ctx := context.Background()
	tier := newMemoryTier()
	require.NoError(t, tier.Set(ctx, NamespaceReconciled, "3", Entry{Data: []byte("x"), StoredAt: time.Now()}))
	require.NoError(t, tier.Set(ctx, NamespaceAnalysis, "99", Entry{Data: []byte("x"), StoredAt: time.Now()}))

	store := NewStore(NamespaceReconciled, time.Hour, WithSecondary(tier))
	require.NoError(t, store.Set(ctx, "1", []byte("a")))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, keys)
}

func TestCombinedStats(t *testing.T) {
	ctx := context.Background()
	reconciled := NewStore(NamespaceReconciled, time.Hour)
	analysis := NewStore(NamespaceAnalysis, time.Hour)

	require.NoError(t, reconciled.Set(ctx, "1", []byte("a")))
	require.NoError(t, reconciled.Set(ctx, "2", []byte("b")))
	require.NoError(t, analysis.Set(ctx, "1", []byte("c")))
	reconciled.Get(ctx, "1")
	analysis.Get(ctx, "1")
	analysis.Get(ctx, "nope")

	stats := CombinedStats(reconciled, analysis)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(3), stats.Updates)
	assert.InDelta(t, 0.667, stats.HitRate, 0.001)
	assert.Equal(t, map[string]int{NamespaceReconciled: 2, NamespaceAnalysis: 1}, stats.Sizes)
}

func TestCombinedStats_Empty(t *testing.T) {
	stats := CombinedStats(NewStore(NamespaceAnalysis, time.Hour))
	assert.Equal(t, 0.0, stats.HitRate)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NamespaceAnalysis, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%5))
			for j := 0; j < 100; j++ {
				_ = store.Set(ctx, id, []byte{byte(j)})
				store.Get(ctx, id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, store.Size())
	assert.Equal(t, int64(2000), store.Stats().Updates)
}
