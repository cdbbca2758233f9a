package job

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediajobs/internal/apperrors"
	"mediajobs/internal/credits"
)

const maxResourceIDLength = 128

// CreateRequest is the payload for creating a job.
type CreateRequest struct {
	ResourceID string `json:"resourceId"`
	SourceURL  string `json:"sourceUrl"`
}

// Service handles job creation, status queries and the operator reprocess
// path. Tick-driven progress lives in the Poller; the Service covers the
// user-driven surface.
type Service struct {
	store Store
	gate  credits.Gate
	lanes map[string]bool
}

// NewService creates a job service restricted to the given lanes.
// A nil gate admits everything.
func NewService(store Store, gate credits.Gate, lanes ...string) *Service {
	if gate == nil {
		gate = credits.Unlimited{}
	}
	known := make(map[string]bool, len(lanes))
	for _, l := range lanes {
		known[l] = true
	}
	return &Service{store: store, gate: gate, lanes: known}
}

// Create validates the request, consults the credit gate and inserts a
// pending job. At most one non-terminal job may exist per resource; the
// check is best-effort check-then-insert since creation is user-driven.
func (s *Service) Create(ctx context.Context, lane string, req *CreateRequest) (*View, error) {
	if !s.lanes[lane] {
		return nil, apperrors.NotFound("lane", lane)
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, lane, req.ResourceID); err != nil {
		return nil, err
	}

	existing, err := s.store.ActiveJobForResource(ctx, lane, req.ResourceID)
	if err != nil {
		return nil, apperrors.Internal("store.activeJobForResource", err)
	}
	if existing != nil {
		return nil, apperrors.Conflict("job", existing.ID, "a job for this resource is already in flight")
	}

	j := &Job{
		ID:         uuid.NewString(),
		Lane:       lane,
		ResourceID: req.ResourceID,
		SourceURL:  req.SourceURL,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateJob(ctx, j); err != nil {
		return nil, apperrors.Internal("store.createJob", err)
	}

	slog.Info("Job created", "jobId", j.ID, "lane", lane, "resourceId", req.ResourceID)
	return j.View(), nil
}

// Get returns the job projection for client polling UIs.
func (s *Service) Get(ctx context.Context, lane, id string) (*View, error) {
	if !s.lanes[lane] {
		return nil, apperrors.NotFound("lane", lane)
	}
	j, err := s.store.GetJob(ctx, lane, id)
	if err != nil {
		return nil, apperrors.Internal("store.getJob", err)
	}
	if j == nil {
		return nil, apperrors.NotFound("job", id)
	}
	return j.View(), nil
}

// Reprocess resets a failed or stuck processing job back to pending,
// clearing the external handle, progress, error and lifecycle timestamps.
// This is a deliberate operator action: there is no automatic timeout,
// because a false-positive reset would duplicate a paid remote submission.
func (s *Service) Reprocess(ctx context.Context, lane, id string) (*View, error) {
	if !s.lanes[lane] {
		return nil, apperrors.NotFound("lane", lane)
	}
	j, err := s.store.GetJob(ctx, lane, id)
	if err != nil {
		return nil, apperrors.Internal("store.getJob", err)
	}
	if j == nil {
		return nil, apperrors.NotFound("job", id)
	}
	if j.Status != StatusFailed && j.Status != StatusProcessing {
		return nil, apperrors.InvalidState("job", id, "only failed or processing jobs can be reprocessed")
	}

	reset, err := s.store.ResetJob(ctx, lane, id)
	if err != nil {
		return nil, apperrors.Internal("store.resetJob", err)
	}
	if !reset {
		// The job transitioned underneath us; report the conflict rather
		// than pretending the reset happened.
		return nil, apperrors.InvalidState("job", id, "job changed state during reprocess")
	}

	slog.Info("Job reset to pending", "jobId", id, "lane", lane)
	return s.Get(ctx, lane, id)
}

func validateCreate(req *CreateRequest) error {
	if req.ResourceID == "" {
		return apperrors.Validation("resourceId", "resource ID is required")
	}
	if len(req.ResourceID) > maxResourceIDLength {
		return apperrors.Validation("resourceId", "resource ID is too long")
	}
	if req.SourceURL == "" {
		return apperrors.Validation("sourceUrl", "source URL is required")
	}
	parsed, err := url.Parse(req.SourceURL)
	if err != nil {
		return apperrors.Validation("sourceUrl", "source URL is malformed")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return apperrors.Validation("sourceUrl", "source URL scheme must be http or https")
	}
	if parsed.Host == "" {
		return apperrors.Validation("sourceUrl", "source URL must have a host")
	}
	return nil
}
