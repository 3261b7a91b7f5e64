package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default max wait when a pull consumer fetches a batch.
const FetchTimeout = 2 * time.Second

// StreamEvents holds every subject under pricewise.events.
const (
	StreamEvents    = "PRICEWISE_EVENTS"
	subjectWildcard = "pricewise.events.>"
)

// Subjects within StreamEvents.
const (
	SubjectRunEvent   = "pricewise.events.run"
	SubjectAuditEvent = "pricewise.events.audit"
)

// Run lifecycle transitions carried in RunEvent.EventType.
const (
	RunStarted   = "run_started"
	RunCompleted = "run_completed"
	RunFailed    = "run_failed"
	RunCancelled = "run_cancelled"
)

// RunEvent is published on pipeline run lifecycle transitions. Downstream
// notification services subscribe to these; the API itself does not.
type RunEvent struct {
	TaskID    string    `json:"task_id"`
	UserID    uuid.UUID `json:"user_id"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MsgID keys JetStream deduplication. A run transitions through each state
// once, so a retried publish of the same transition is dropped inside the
// stream's duplicate window.
func (e RunEvent) MsgID() string {
	return e.TaskID + ":" + e.EventType
}

// AuditEvent is the wire form of an audit trail entry.
type AuditEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}
