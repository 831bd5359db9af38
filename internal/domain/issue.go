package domain

import "time"

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusClosed     IssueStatus = "closed"
)

// ParseIssueStatus validates s against the status enum.
func ParseIssueStatus(s string) (IssueStatus, bool) {
	switch status := IssueStatus(s); status {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusClosed:
		return status, true
	default:
		return "", false
	}
}

// Active reports whether the status still books the assignee.
func (s IssueStatus) Active() bool {
	return s == IssueStatusOpen || s == IssueStatusInProgress
}

// StatusTimestamps records when each status was first entered.
type StatusTimestamps struct {
	Open       time.Time
	InProgress *time.Time
	Closed     *time.Time
}

// Issue is the aggregate owned by the lifecycle engine.
type Issue struct {
	ID               string
	Title            string
	Description      string
	Status           IssueStatus
	AssignedTo       *string
	CreatedBy        string
	StatusTimestamps StatusTimestamps
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Assignee is populated by read paths that join the assignee's public profile.
	Assignee *UserProfile
}

// IsAssigned reports whether a technician holds the issue.
func (i *Issue) IsAssigned() bool {
	return i.AssignedTo != nil && *i.AssignedTo != ""
}

var statusTransitions = map[IssueStatus][]IssueStatus{
	IssueStatusOpen:       {IssueStatusInProgress, IssueStatusClosed},
	IssueStatusInProgress: {IssueStatusClosed},
	IssueStatusClosed:     {},
}

// CanTransition reports whether current may move to next. Staying put is always allowed.
func CanTransition(current, next IssueStatus) bool {
	if current == next {
		return true
	}
	for _, candidate := range statusTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
