package job

import (
	"context"
	"log/slog"
	"time"

	"mediajobs/internal/apperrors"
	"mediajobs/internal/observability"
	"mediajobs/pkg/cloudevent"
)

// Tick outcomes recorded per invocation, low-cardinality by construction.
const (
	TickIdle      = "idle"      // nothing pending, nothing processing
	TickRaceLost  = "race-lost" // another tick claimed the job first
	TickAdmitted  = "admitted"  // pending job claimed and submitted
	TickDeferred  = "deferred"  // transient external error, retry next tick
	TickProgress  = "progress"  // processing job still running remotely
	TickCompleted = "completed"
	TickFailed    = "failed"
)

// TickResult is the summary returned to the external scheduler.
type TickResult struct {
	Message    string `json:"message,omitempty"`
	JobID      string `json:"jobId,omitempty"`
	ResourceID string `json:"resourceId,omitempty"`
}

// laneConfig couples an adapter with its admission cap.
type laneConfig struct {
	adapter Adapter
	cap     int
}

// Poller advances one lane by at most one unit of work per tick.
//
// The Poller holds no job state: every tick rediscovers the lane's state
// from the Store, so overlapping ticks (cron double fires, manual
// retriggers) coordinate solely through the store's conditional writes.
type Poller struct {
	store   Store
	lanes   map[string]laneConfig
	metrics *observability.Metrics
	sink    EventSink
	logger  *slog.Logger
}

// NewPoller creates a poller. metrics and sink may be nil.
func NewPoller(store Store, metrics *observability.Metrics, sink EventSink) *Poller {
	return &Poller{
		store:   store,
		lanes:   make(map[string]laneConfig),
		metrics: metrics,
		sink:    sink,
		logger:  slog.With("component", "poller"),
	}
}

// RegisterLane wires an adapter into the poller under its lane name.
// A cap below 1 is treated as 1.
func (p *Poller) RegisterLane(adapter Adapter, cap int) {
	if cap < 1 {
		cap = 1
	}
	p.lanes[adapter.Lane()] = laneConfig{adapter: adapter, cap: cap}
}

// Lanes returns the registered lane names.
func (p *Poller) Lanes() []string {
	names := make([]string, 0, len(p.lanes))
	for name := range p.lanes {
		names = append(names, name)
	}
	return names
}

// Tick performs one admission-or-progress cycle for the lane. It is safe to
// call concurrently with itself; a tick that loses a claim race reports an
// idle result rather than an error.
func (p *Poller) Tick(ctx context.Context, lane string) (*TickResult, error) {
	cfg, ok := p.lanes[lane]
	if !ok {
		return nil, apperrors.NotFound("lane", lane)
	}

	start := time.Now()
	result, outcome, err := p.tick(ctx, lane, cfg)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RecordTick(ctx, lane, outcome, time.Since(start).Seconds())
	}
	return result, nil
}

func (p *Poller) tick(ctx context.Context, lane string, cfg laneConfig) (*TickResult, string, error) {
	processing, err := p.store.ProcessingJobs(ctx, lane)
	if err != nil {
		return nil, "", apperrors.Internal("store.processingJobs", err)
	}

	// Admission runs first while the lane has headroom, so a cap above one
	// actually fills. The occupancy read is advisory: the claim itself
	// re-checks occupancy atomically, which is what keeps overlapping ticks
	// from ever exceeding the cap. With nothing to admit the tick falls
	// through to polling the in-flight work.
	if len(processing) < cfg.cap {
		result, outcome, err := p.admitNext(ctx, lane, cfg)
		if err != nil || outcome != TickIdle {
			return result, outcome, err
		}
	}

	if len(processing) == 0 {
		return &TickResult{Message: "no pending jobs"}, TickIdle, nil
	}
	return p.checkProcessing(ctx, cfg, pollTarget(processing))
}

// pollTarget picks the oldest in-flight job that has a remote handle, so one
// crash-orphaned claim cannot starve status checks for the rest of the lane.
func pollTarget(processing []*Job) *Job {
	for _, j := range processing {
		if j.ExternalRef != nil {
			return j
		}
	}
	return processing[0]
}

// admitNext promotes the oldest pending job and submits it to the external
// service. The claim is occupancy-guarded, so it reports race-lost when a
// concurrent tick claimed the job or filled the lane between the caller's
// occupancy read and the claim.
func (p *Poller) admitNext(ctx context.Context, lane string, cfg laneConfig) (*TickResult, string, error) {
	pending, err := p.store.OldestPending(ctx, lane)
	if err != nil {
		return nil, "", apperrors.Internal("store.oldestPending", err)
	}
	if pending == nil {
		return &TickResult{Message: "no pending jobs"}, TickIdle, nil
	}

	now := time.Now().UTC()
	claimed, err := p.store.ClaimPending(ctx, lane, pending.ID, cfg.cap, now)
	if err != nil {
		return nil, "", apperrors.Internal("store.claimPending", err)
	}
	if !claimed {
		// A concurrent tick claimed this job or filled the lane first;
		// either way there is nothing to do.
		return &TickResult{Message: "claim lost to a concurrent tick"}, TickRaceLost, nil
	}
	pending.Status = StatusProcessing
	pending.StartedAt = &now

	logger := p.logger.With("jobId", pending.ID, "lane", lane)

	ref, err := cfg.adapter.Submit(ctx, pending)
	if err != nil {
		if IsTransient(err) {
			// Return the claim so a later tick retries the submission;
			// nothing was accepted remotely.
			if _, relErr := p.store.ReleaseClaim(ctx, lane, pending.ID); relErr != nil {
				return nil, "", apperrors.Internal("store.releaseClaim", relErr)
			}
			logger.Warn("Submission deferred", "error", err)
			return &TickResult{Message: "submission deferred: " + err.Error(), JobID: pending.ID}, TickDeferred, nil
		}
		return p.failJob(ctx, cfg, pending, err.Error(), TickFailed)
	}

	if err := p.store.SetSubmitted(ctx, lane, pending.ID, ref, "submitted"); err != nil {
		return nil, "", apperrors.Internal("store.setSubmitted", err)
	}
	if p.metrics != nil {
		p.metrics.RecordJobAdmitted(ctx, lane)
	}
	logger.Info("Job admitted", "externalRef", ref)
	return &TickResult{JobID: pending.ID, ResourceID: pending.ResourceID}, TickAdmitted, nil
}

// checkProcessing polls the remote status of the in-flight job and applies
// the resulting transition, if any.
func (p *Poller) checkProcessing(ctx context.Context, cfg laneConfig, j *Job) (*TickResult, string, error) {
	logger := p.logger.With("jobId", j.ID, "lane", j.Lane)

	if j.ExternalRef == nil {
		// Claimed but never submitted (crash between claim and submit).
		// Recoverable only through the operator reprocess path.
		logger.Warn("Processing job has no external reference")
		return &TickResult{
			Message: "processing job awaiting operator reprocess",
			JobID:   j.ID,
		}, TickDeferred, nil
	}

	rs, err := cfg.adapter.CheckStatus(ctx, *j.ExternalRef)
	if err != nil {
		if IsTransient(err) {
			// No state change; the next tick retries automatically.
			logger.Warn("Status check deferred", "error", err)
			return &TickResult{Message: "status check deferred: " + err.Error(), JobID: j.ID}, TickDeferred, nil
		}
		return p.failJob(ctx, cfg, j, err.Error(), TickFailed)
	}

	switch rs.State {
	case RemoteCompleted:
		artifacts, err := cfg.adapter.Finalize(ctx, j, rs)
		if err != nil {
			// The external spend already happened; the distinct prefix
			// tells operators this failure was local.
			return p.failJob(ctx, cfg, j, "finalize: "+err.Error(), TickFailed)
		}
		changed, err := p.store.MarkCompleted(ctx, j.Lane, j.ID, rs.Raw, artifacts, time.Now().UTC())
		if err != nil {
			return nil, "", apperrors.Internal("store.markCompleted", err)
		}
		if changed {
			logger.Info("Job completed")
			if p.metrics != nil {
				p.metrics.RecordJobFinished(ctx, j.Lane, true, jobDuration(j))
			}
			p.publish(CompletedEvent(j))
		}
		return &TickResult{JobID: j.ID, ResourceID: j.ResourceID}, TickCompleted, nil

	case RemoteFailed:
		msg := rs.Message
		if msg == "" {
			msg = "external service reported failure"
		}
		return p.failJob(ctx, cfg, j, msg, TickFailed)

	default:
		if err := p.store.UpdateProgress(ctx, j.Lane, j.ID, rs.Progress, rs.Raw); err != nil {
			return nil, "", apperrors.Internal("store.updateProgress", err)
		}
		return &TickResult{JobID: j.ID, ResourceID: j.ResourceID}, TickProgress, nil
	}
}

// failJob applies the terminal failed transition and emits the event once.
func (p *Poller) failJob(ctx context.Context, cfg laneConfig, j *Job, msg, outcome string) (*TickResult, string, error) {
	changed, err := p.store.MarkFailed(ctx, j.Lane, j.ID, msg, time.Now().UTC())
	if err != nil {
		return nil, "", apperrors.Internal("store.markFailed", err)
	}
	if changed {
		p.logger.Warn("Job failed", "jobId", j.ID, "lane", j.Lane, "error", msg)
		if p.metrics != nil {
			p.metrics.RecordJobFinished(ctx, j.Lane, false, jobDuration(j))
		}
		p.publish(FailedEvent(j, msg))
	}
	return &TickResult{JobID: j.ID, ResourceID: j.ResourceID}, outcome, nil
}

func (p *Poller) publish(ev *cloudevent.CloudEvent) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Enqueue(ev); err != nil {
		p.logger.Warn("Event dropped", "type", ev.Type, "subject", ev.Subject, "error", err)
	}
}

func jobDuration(j *Job) float64 {
	start := j.CreatedAt
	if j.StartedAt != nil {
		start = *j.StartedAt
	}
	return time.Since(start).Seconds()
}
