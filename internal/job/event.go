package job

import (
	"fmt"
	"time"

	"mediajobs/pkg/cloudevent"
)

// Event types for terminal job transitions, delivered to the configured
// product webhook so the application can update the owning resource's UI.
const (
	EventTypeCompleted = "mediajobs.job.completed"
	EventTypeFailed    = "mediajobs.job.failed"
)

// EventSink receives lifecycle events for async delivery. Implemented by
// notify.Notifier; a nil sink disables notifications.
type EventSink interface {
	Enqueue(event *cloudevent.CloudEvent) error
}

// eventSource identifies this service in emitted CloudEvents.
const eventSource = "/mediajobs"

func newEvent(eventType string, j *Job, data map[string]any) *cloudevent.CloudEvent {
	data["jobId"] = j.ID
	data["lane"] = j.Lane
	data["resourceId"] = j.ResourceID
	eventID := fmt.Sprintf("%s-%d", j.ID, time.Now().UnixNano())
	return cloudevent.New(eventType, eventSource, j.ID, eventID, data)
}

// CompletedEvent builds the event emitted when a job reaches completed.
func CompletedEvent(j *Job) *cloudevent.CloudEvent {
	return newEvent(EventTypeCompleted, j, map[string]any{})
}

// FailedEvent builds the event emitted when a job reaches failed.
func FailedEvent(j *Job, errMsg string) *cloudevent.CloudEvent {
	return newEvent(EventTypeFailed, j, map[string]any{"error": errMsg})
}
