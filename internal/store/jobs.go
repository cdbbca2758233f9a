package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mediajobs/internal/apperrors"
	"mediajobs/internal/job"
)

// laneTables maps a lane to its job table and the parent-resource table the
// sweeper consults. Per-lane tables share an identical shape; the lane name
// never comes from user input unchecked, it is validated against this map
// before being interpolated into SQL.
type laneTables struct {
	jobs      string
	resources string
}

var laneRegistry = map[string]laneTables{
	job.LaneSeparation: {jobs: "separation_jobs", resources: "audio_tracks"},
	job.LaneDownload:   {jobs: "download_jobs", resources: "media_assets"},
}

// JobStore is the PostgreSQL implementation of job.Store.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// Ready reports whether the database is reachable.
func (s *JobStore) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *JobStore) tables(lane string) (laneTables, error) {
	t, ok := laneRegistry[lane]
	if !ok {
		return laneTables{}, apperrors.NotFound("lane", lane)
	}
	return t, nil
}

const jobColumns = "id, resource_id, source_url, status, progress, external_ref, external_status, error, artifacts, created_at, started_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner, lane string) (*job.Job, error) {
	j := &job.Job{Lane: lane}
	var artifacts []byte
	err := row.Scan(
		&j.ID, &j.ResourceID, &j.SourceURL, &j.Status, &j.Progress,
		&j.ExternalRef, &j.ExternalStatus, &j.Error, &artifacts,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &j.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts: %w", err)
		}
	}
	return j, nil
}

func (s *JobStore) CreateJob(ctx context.Context, j *job.Job) error {
	t, err := s.tables(j.Lane)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, resource_id, source_url, status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, t.jobs)
	_, err = s.db.ExecContext(ctx, query,
		j.ID, j.ResourceID, j.SourceURL, j.Status, j.Progress, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert %s job: %w", j.Lane, err)
	}
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, lane, id string) (*job.Job, error) {
	t, err := s.tables(lane)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", jobColumns, t.jobs)
	return scanJob(s.db.QueryRowContext(ctx, query, id), lane)
}

func (s *JobStore) ActiveJobForResource(ctx context.Context, lane, resourceID string) (*job.Job, error) {
	t, err := s.tables(lane)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE resource_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at LIMIT 1`, jobColumns, t.jobs)
	return scanJob(s.db.QueryRowContext(ctx, query, resourceID), lane)
}

func (s *JobStore) ProcessingJobs(ctx context.Context, lane string) ([]*job.Job, error) {
	t, err := s.tables(lane)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE status = 'processing'
		ORDER BY started_at, id`, jobColumns, t.jobs)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query processing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows, lane)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *JobStore) OldestPending(ctx context.Context, lane string) (*job.Job, error) {
	t, err := s.tables(lane)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE status = 'pending'
		ORDER BY created_at, id LIMIT 1`, jobColumns, t.jobs)
	return scanJob(s.db.QueryRowContext(ctx, query), lane)
}

func (s *JobStore) ClaimPending(ctx context.Context, lane, id string, cap int, now time.Time) (bool, error) {
	t, err := s.tables(lane)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	// Claims are the only writes that grow the processing set, so
	// serializing them per lane makes the occupancy count and the claim one
	// atomic step under READ COMMITTED. Completions run outside the lock; a
	// stale count can only under-admit, never breach the cap.
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", t.jobs); err != nil {
		return false, fmt.Errorf("lock lane: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %[1]s SET status = 'processing', started_at = $2
		WHERE id = $1 AND status = 'pending'
		AND (SELECT count(*) FROM %[1]s WHERE status = 'processing') < $3`, t.jobs)
	res, err := tx.ExecContext(ctx, query, id, now, cap)
	if err != nil {
		return false, fmt.Errorf("claim pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit claim: %w", err)
	}
	return n > 0, nil
}

func (s *JobStore) ReleaseClaim(ctx context.Context, lane, id string) (bool, error) {
	t, err := s.tables(lane)
	if err != nil {
		return false, err
	}
	// Only unsubmitted claims may be released; once external_ref is set the
	// remote side owns the work and the job must poll to a terminal state.
	query := fmt.Sprintf(`UPDATE %s SET status = 'pending', started_at = NULL
		WHERE id = $1 AND status = 'processing' AND external_ref IS NULL`, t.jobs)
	return s.execCAS(ctx, query, id)
}

func (s *JobStore) SetSubmitted(ctx context.Context, lane, id, externalRef, externalStatus string) error {
	t, err := s.tables(lane)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET external_ref = $2, external_status = $3
		WHERE id = $1 AND status = 'processing'`, t.jobs)
	if _, err := s.db.ExecContext(ctx, query, id, externalRef, externalStatus); err != nil {
		return fmt.Errorf("set submitted: %w", err)
	}
	return nil
}

func (s *JobStore) UpdateProgress(ctx context.Context, lane, id string, progress int, externalStatus string) error {
	t, err := s.tables(lane)
	if err != nil {
		return err
	}
	// GREATEST keeps progress monotonic if a stale poll result lands late.
	query := fmt.Sprintf(`UPDATE %s SET progress = GREATEST(progress, $2), external_status = $3
		WHERE id = $1 AND status = 'processing'`, t.jobs)
	if _, err := s.db.ExecContext(ctx, query, id, progress, externalStatus); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, lane, id, externalStatus string, artifacts map[string]string, now time.Time) (bool, error) {
	t, err := s.tables(lane)
	if err != nil {
		return false, err
	}
	var blob []byte
	if len(artifacts) > 0 {
		if blob, err = json.Marshal(artifacts); err != nil {
			return false, fmt.Errorf("encode artifacts: %w", err)
		}
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 'completed', progress = 100,
		external_status = $2, artifacts = $3, completed_at = $4
		WHERE id = $1 AND status = 'processing'`, t.jobs)
	return s.execCAS(ctx, query, id, externalStatus, blob, now)
}

func (s *JobStore) MarkFailed(ctx context.Context, lane, id, errMsg string, now time.Time) (bool, error) {
	t, err := s.tables(lane)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 'failed', error = $2, completed_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')`, t.jobs)
	return s.execCAS(ctx, query, id, errMsg, now)
}

func (s *JobStore) ResetJob(ctx context.Context, lane, id string) (bool, error) {
	t, err := s.tables(lane)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 'pending', progress = 0,
		external_ref = NULL, external_status = NULL, error = NULL,
		artifacts = NULL, started_at = NULL, completed_at = NULL
		WHERE id = $1 AND status IN ('failed', 'processing')`, t.jobs)
	return s.execCAS(ctx, query, id)
}

func (s *JobStore) SweepAbandoned(ctx context.Context, lane string, cutoff time.Time) (int64, error) {
	t, err := s.tables(lane)
	if err != nil {
		return 0, err
	}
	// A failed job whose parent resource exists is diagnostic history and is
	// kept; one with no resource row is abandoned debris.
	query := fmt.Sprintf(`DELETE FROM %s j
		WHERE j.status = 'failed' AND j.created_at < $1
		AND NOT EXISTS (SELECT 1 FROM %s r WHERE r.id = j.resource_id)`,
		t.jobs, t.resources)
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", lane, err)
	}
	return res.RowsAffected()
}

// execCAS runs a conditional UPDATE and reports whether it won the row.
func (s *JobStore) execCAS(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("conditional update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
