package collector

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// RefreshReport summarizes one batch refresh
type RefreshReport struct {
	Scanned   int           `json:"scanned"`
	Stale     int           `json:"stale"`
	Refreshed int           `json:"refreshed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// RefreshStaleData re-fetches basic stats for every persisted snapshot older
// than the freshness window. Subjects are processed one at a time with at
// least RefreshSpacing between the end of one upstream call and the start of
// the next. Given-review counts and their provenance are kept as they are.
// Per-subject failures do not stop the batch; they are returned together as a
// PartialBatchFailure alongside the report.
func (c *Collector) RefreshStaleData(ctx context.Context) (report RefreshReport, err error) {
	ctx, span := c.tracer.Start(ctx, "collector.RefreshStaleData")
	defer func() {
		span.SetAttributes(
			attribute.Int("refresh.stale", report.Stale),
			attribute.Int("refresh.refreshed", report.Refreshed),
			attribute.Int("refresh.failed", report.Failed),
		)
		monitoring.EndSpan(span, err)
	}()

	start := c.now()

	ids, err := c.store.Keys(ctx)
	if err != nil {
		return report, apperrors.WrapError(err, "failed to enumerate reconciled user data")
	}
	report.Scanned = len(ids)

	var stale []*types.ReconciledUserData
	for _, id := range ids {
		snapshot, ok := c.Snapshot(ctx, id)
		if ok && !c.fresh(snapshot) {
			stale = append(stale, snapshot)
		}
	}
	report.Stale = len(stale)

	failures := make(map[string]error)
	var last time.Time

	for _, snapshot := range stale {
		if err := pace(ctx, last, c.config.RefreshSpacing); err != nil {
			return c.finishRefresh(report, start), err
		}

		err := c.refreshOne(ctx, snapshot)
		last = time.Now()
		if err != nil {
			key := snapshot.Subject.Key()
			failures[key] = err
			report.Failed++
			c.logger.Warn("Failed to refresh subject", "subject", key, "error", err)
			continue
		}
		report.Refreshed++
	}

	report = c.finishRefresh(report, start)
	if len(failures) > 0 {
		return report, apperrors.NewPartialBatchFailureError(failures)
	}
	return report, nil
}

// pace blocks until spacing has passed since the previous upstream call
// finished. last is zero before the first call.
func pace(ctx context.Context, last time.Time, spacing time.Duration) error {
	if last.IsZero() {
		return ctx.Err()
	}
	wait := time.Until(last.Add(spacing))
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Collector) refreshOne(ctx context.Context, snapshot *types.ReconciledUserData) error {
	key := snapshot.Subject.Key()

	stats, err := c.source.FetchBasicStats(ctx, key)
	if err != nil {
		if !apperrors.IsCategory(err, apperrors.CategoryUpstreamUnavailable) {
			err = apperrors.NewUpstreamUnavailableError("activity source", key, err)
		}
		return err
	}

	counts := &snapshot.Counts
	counts.ReviewsReceived = stats.ReviewsReceived
	counts.ReceivedBreakdown = stats.ReceivedBreakdown
	counts.VouchesGiven = stats.VouchesGiven
	counts.VouchesReceived = stats.VouchesReceived

	now := c.now()
	snapshot.LastUpdated = now
	snapshot.NextRefresh = now.Add(c.config.FreshnessWindow)

	return c.store.SetJSON(ctx, snapshot.Subject.CacheID(), snapshot)
}

func (c *Collector) finishRefresh(report RefreshReport, start time.Time) RefreshReport {
	report.Duration = c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.RecordRefresh(report.Refreshed, report.Failed)
	}
	c.logger.RefreshLogger(report.Stale, report.Refreshed, report.Failed, report.Duration)
	return report
}
