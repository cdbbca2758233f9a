// Package job defines the job state machine, the capability interfaces it is
// built on, and the tick-driven Poller that advances it.
package job

import "time"

// Status is the lifecycle state of a job.
//
// Transitions are monotonic: pending -> processing -> {completed, failed},
// with pending -> failed permitted for submission failures. Terminal states
// are never left except through an explicit operator reset.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further automatic transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Lane names. Each lane is an independent queue with its own concurrency cap,
// backed by its own table and external service.
const (
	LaneSeparation = "separation"
	LaneDownload   = "download"
)

// Job is one row in a lane's job table; the durable source of truth.
type Job struct {
	ID             string
	Lane           string
	ResourceID     string // owning domain object (audio track, media asset)
	SourceURL      string // input handed to the external service
	Status         Status
	Progress       int               // 0-100, non-decreasing while processing
	ExternalRef    *string           // remote job handle, nil until submitted
	ExternalStatus *string           // last raw remote status, kept for diagnostics
	Error          *string           // set only on failed
	Artifacts      map[string]string // durable result URLs by name, set on completed
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// View is the client-facing projection of a Job.
type View struct {
	ID             string            `json:"id"`
	Lane           string            `json:"lane"`
	ResourceID     string            `json:"resourceId"`
	Status         Status            `json:"status"`
	Progress       int               `json:"progress"`
	ExternalStatus string            `json:"externalStatus,omitempty"`
	Error          string            `json:"error,omitempty"`
	Artifacts      map[string]string `json:"artifacts,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	StartedAt      *time.Time        `json:"startedAt,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}

// View returns the API projection of the job.
func (j *Job) View() *View {
	v := &View{
		ID:          j.ID,
		Lane:        j.Lane,
		ResourceID:  j.ResourceID,
		Status:      j.Status,
		Progress:    j.Progress,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.ExternalStatus != nil {
		v.ExternalStatus = *j.ExternalStatus
	}
	if j.Error != nil {
		v.Error = *j.Error
	}
	v.Artifacts = j.Artifacts
	return v
}
