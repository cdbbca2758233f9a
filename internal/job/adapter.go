package job

import (
	"context"
	"errors"
	"fmt"
)

// RemoteState is the local trichotomy that every external service's status
// vocabulary is mapped onto.
type RemoteState string

const (
	RemoteInProgress RemoteState = "in-progress"
	RemoteCompleted  RemoteState = "completed"
	RemoteFailed     RemoteState = "failed"
)

// RemoteStatus is the adapter's view of a remote job.
type RemoteStatus struct {
	State     RemoteState
	Progress  int               // 0-100 best effort; services without progress report 0
	Raw       string            // raw remote status string, retained for diagnostics
	Artifacts map[string]string // result URLs by artifact name, set when completed
	Message   string            // remote failure message, set when failed
}

// Adapter translates between local job state and one external service.
//
// Adapters classify errors but never decide retry policy: a transient error
// (network failure, 5xx) is wrapped with Transient so the Poller can leave
// the job untouched for the next tick, while permanent errors (rejected
// payload, auth failure, remote-reported failure) surface as plain errors
// and terminate the job.
type Adapter interface {
	// Lane returns the lane this adapter serves.
	Lane() string

	// Submit sends the job to the external service and returns the remote
	// handle used for subsequent status checks.
	Submit(ctx context.Context, j *Job) (externalRef string, err error)

	// CheckStatus polls the remote job.
	CheckStatus(ctx context.Context, externalRef string) (*RemoteStatus, error)

	// Finalize relocates the completed artifacts into durable storage and
	// binds them to the owning resource, returning the durable artifact URLs
	// by name for the job record. The external result URLs are not assumed
	// to outlive the remote job, so this runs before the job is marked
	// completed; a failure here is terminal but distinct from a remote
	// failure.
	Finalize(ctx context.Context, j *Job, status *RemoteStatus) (map[string]string, error)
}

// transientError marks an error as retryable by a later tick.
type transientError struct {
	cause error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("transient: %v", e.cause)
}

func (e *transientError) Unwrap() error {
	return e.cause
}

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{cause: err}
}

// IsTransient reports whether err was classified as transient by an adapter.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
