package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/cache"
)

// NamespaceListing holds cached history listings
const NamespaceListing = "history-listing"

// ListingCache is a read-through cache for history listings. Any write to the
// history clears it.
type ListingCache struct {
	store *cache.Store
}

// NewListingCache creates a new listing cache
func NewListingCache(ttl time.Duration, opts ...cache.Option) *ListingCache {
	return &ListingCache{store: cache.NewStore(NamespaceListing, ttl, opts...)}
}

func topRiskKey(limit int) string {
	return fmt.Sprintf("top:%d", limit)
}

// GetTopRisk returns a cached top-risk listing
func (lc *ListingCache) GetTopRisk(ctx context.Context, limit int) ([]Entry, bool) {
	var entries []Entry
	found, err := lc.store.GetJSON(ctx, topRiskKey(limit), &entries)
	if err != nil {
		slog.Error("Failed to unmarshal cached top risk listing", "error", err, "limit", limit)
		return nil, false
	}
	if found {
		slog.Debug("Top risk cache hit", "limit", limit)
	}
	return entries, found
}

// SetTopRisk caches a top-risk listing
func (lc *ListingCache) SetTopRisk(ctx context.Context, limit int, entries []Entry) {
	if err := lc.store.SetJSON(ctx, topRiskKey(limit), entries); err != nil {
		slog.Error("Failed to cache top risk listing", "error", err, "limit", limit)
	}
}

// Invalidate drops every cached listing
func (lc *ListingCache) Invalidate(ctx context.Context) {
	if err := lc.store.Clear(ctx); err != nil {
		slog.Warn("Failed to clear history listing cache", "error", err)
	}
}

// Stats returns the listing cache counters
func (lc *ListingCache) Stats() cache.Stats {
	return lc.store.Stats()
}

// CacheStats reports the listing cache counters
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}
