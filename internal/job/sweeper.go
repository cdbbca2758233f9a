package job

import (
	"context"
	"log/slog"
	"time"

	"mediajobs/internal/apperrors"
	"mediajobs/internal/observability"
)

// Sweeper reclaims failed jobs whose parent resource was never materialized
// once they age past the retention window. Failed jobs with a live parent
// are diagnostic history and are never touched, nor are completed or
// processing jobs.
type Sweeper struct {
	store     Store
	lanes     []string
	retention time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewSweeper creates a sweeper over the given lanes.
func NewSweeper(store Store, retention time.Duration, metrics *observability.Metrics, lanes ...string) *Sweeper {
	return &Sweeper{
		store:     store,
		lanes:     lanes,
		retention: retention,
		metrics:   metrics,
		logger:    slog.With("component", "sweeper"),
	}
}

// Sweep deletes abandoned failed jobs older than the retention window and
// returns the total number of rows removed across all lanes.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retention)

	var total int64
	for _, lane := range s.lanes {
		deleted, err := s.store.SweepAbandoned(ctx, lane, cutoff)
		if err != nil {
			return total, apperrors.Internal("store.sweepAbandoned", err)
		}
		if deleted > 0 {
			s.logger.Info("Swept abandoned jobs", "lane", lane, "deleted", deleted)
			if s.metrics != nil {
				s.metrics.RecordJobsSwept(ctx, lane, deleted)
			}
		}
		total += deleted
	}
	return total, nil
}
