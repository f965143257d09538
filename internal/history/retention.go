package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention is how long history rows are kept
const DefaultRetention = 365 * 24 * time.Hour

// Prune deletes history rows created before cutoff and returns how many went
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM analysis_history WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune analysis history: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.cache.Invalidate(ctx)
	}

	slog.Info("History cleanup completed", "cutoff", cutoff.UTC(), "deleted", deleted)
	return deleted, nil
}

// PruneOlderThan removes rows older than retention relative to now
func (s *Service) PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return s.Prune(ctx, s.now().Add(-retention))
}
