package job

import (
	"context"
	"time"
)

// Store is the durable record of jobs and the only coordination point
// between concurrently executing ticks.
//
// Lookup methods return (nil, nil) when no row matches. Every state
// transition is a single conditional write guarded by the expected current
// status; implementations report false when zero rows were affected, which
// callers treat as "lost the race, nothing to do".
type Store interface {
	// CreateJob inserts a new pending job. Duplicate protection for a
	// resource is best-effort check-then-insert at the service layer;
	// creation is user-driven and rare enough not to need CAS rigor.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob returns the job or (nil, nil).
	GetJob(ctx context.Context, lane, id string) (*Job, error)

	// ActiveJobForResource returns the non-terminal job bound to the
	// resource, or (nil, nil).
	ActiveJobForResource(ctx context.Context, lane, resourceID string) (*Job, error)

	// ProcessingJobs returns all processing jobs in the lane, oldest first.
	ProcessingJobs(ctx context.Context, lane string) ([]*Job, error)

	// OldestPending returns the pending job with the earliest createdAt
	// (ties broken by id), or (nil, nil).
	OldestPending(ctx context.Context, lane string) (*Job, error)

	// ClaimPending atomically promotes pending -> processing and sets
	// startedAt, but only while the lane holds fewer than cap processing
	// jobs. The occupancy check and the claim are a single atomic step, so
	// overlapping ticks can never push a lane past its cap. false means
	// another tick claimed the job or filled the lane first.
	ClaimPending(ctx context.Context, lane, id string, cap int, now time.Time) (bool, error)

	// ReleaseClaim returns an unsubmitted processing job to pending so a
	// later tick can retry admission after a transient submit failure.
	ReleaseClaim(ctx context.Context, lane, id string) (bool, error)

	// SetSubmitted records the remote handle on a processing job.
	SetSubmitted(ctx context.Context, lane, id, externalRef, externalStatus string) error

	// UpdateProgress records progress on a processing job. Progress never
	// decreases and terminal jobs are never touched.
	UpdateProgress(ctx context.Context, lane, id string, progress int, externalStatus string) error

	// MarkCompleted atomically moves processing -> completed, freezing
	// progress at 100 and recording the durable artifact URLs.
	MarkCompleted(ctx context.Context, lane, id, externalStatus string, artifacts map[string]string, now time.Time) (bool, error)

	// MarkFailed atomically moves pending or processing -> failed.
	MarkFailed(ctx context.Context, lane, id, errMsg string, now time.Time) (bool, error)

	// ResetJob is the operator recovery path: failed or stuck processing
	// -> pending, clearing externalRef, progress, error, artifacts and
	// timestamps.
	ResetJob(ctx context.Context, lane, id string) (bool, error)

	// SweepAbandoned deletes failed jobs created before cutoff whose parent
	// resource was never materialized. Returns the number of rows deleted.
	SweepAbandoned(ctx context.Context, lane string, cutoff time.Time) (int64, error)
}
