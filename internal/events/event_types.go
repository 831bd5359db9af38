package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/issue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueCreated       EventType = "issue_created"
	EventIssueAssigned      EventType = "issue_assigned"
	EventIssueStatusChanged EventType = "issue_status_changed"
	EventIssueDeleted       EventType = "issue_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	IssueID   string      `json:"issue_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(eventType EventType, issueID, actorID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		IssueID:   issueID,
		ActorID:   actorID,
		Timestamp: at,
		Payload:   payload,
	}
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Title      string             `json:"title"`
	Status     domain.IssueStatus `json:"status"`
	AssignedTo *string            `json:"assigned_to,omitempty"`
}

// IssueAssignedPayload payload.
type IssueAssignedPayload struct {
	TechnicianID    string             `json:"technician_id"`
	TechnicianEmail string             `json:"technician_email,omitempty"`
	Status          domain.IssueStatus `json:"status"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
}

// IssueDeletedPayload payload.
type IssueDeletedPayload struct {
	Title      string  `json:"title"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}
