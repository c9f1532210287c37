// Package events publishes report domain events to a broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	ReportCreated       = "report.created"
	ReportUpdated       = "report.updated"
	ReportStatusChanged = "report.status_changed"
	ReportNoteAdded     = "report.note_added"
	ReportCommented     = "report.commented"
	ReportVoted         = "report.voted"
)

// Event is a single domain event.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	ReportID  string          `json:"report_id"`
	ActorID   string          `json:"actor_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// StatusChangedPayload accompanies ReportStatusChanged.
type StatusChangedPayload struct {
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// VotedPayload accompanies ReportVoted.
type VotedPayload struct {
	Kind      string `json:"kind"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

// New builds an event with a fresh id and JSON-encoded payload.
func New(eventType, reportID, actorID string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		ReportID:  reportID,
		ActorID:   actorID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}
