package store

import (
	"context"
	"fmt"
	"time"

	"mediajobs/internal/apperrors"
)

// BindStems attaches the relocated stem URLs to an existing audio track.
// The track row must already exist; separation jobs never create resources.
func (s *JobStore) BindStems(ctx context.Context, trackID, vocalsURL, instrumentalURL string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE audio_tracks
		SET vocals_url = $2, instrumental_url = $3, separated_at = $4
		WHERE id = $1`,
		trackID, vocalsURL, instrumentalURL, now)
	if err != nil {
		return fmt.Errorf("bind stems: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bind stems: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("audioTrack", trackID)
	}
	return nil
}

// MaterializeMediaAsset creates the media asset row for a finished download.
// Upsert on id keeps finalize idempotent when a completion is re-observed.
func (s *JobStore) MaterializeMediaAsset(ctx context.Context, assetID, sourceURL, fileURL string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO media_assets (id, source_url, file_url, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET file_url = EXCLUDED.file_url`,
		assetID, sourceURL, fileURL, now)
	if err != nil {
		return fmt.Errorf("materialize media asset: %w", err)
	}
	return nil
}
