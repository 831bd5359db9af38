package dto

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	Title       string  `json:"title" validate:"max=200"`
	Description string  `json:"description" validate:"max=5000"`
	AssignedTo  *string `json:"assigned_to"`
}

// AssignIssueRequest payload.
type AssignIssueRequest struct {
	IssueID      string `json:"issue_id" validate:"required"`
	TechnicianID string `json:"technician_id" validate:"required"`
}

// UpdateIssueRequest payload. Omitted or blank fields keep their current value.
type UpdateIssueRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Status      *string `json:"status"`
}

// StatusTimestampsResponse records when each status was first entered.
type StatusTimestampsResponse struct {
	Open       time.Time  `json:"open"`
	InProgress *time.Time `json:"in_progress"`
	Closed     *time.Time `json:"closed"`
}

// IssueResponse response.
type IssueResponse struct {
	ID               string                   `json:"id"`
	Title            string                   `json:"title"`
	Description      string                   `json:"description"`
	Status           domain.IssueStatus       `json:"status"`
	AssignedTo       *string                  `json:"assigned_to"`
	Assignee         *UserProfileResponse     `json:"assignee,omitempty"`
	CreatedBy        string                   `json:"created_by"`
	StatusTimestamps StatusTimestampsResponse `json:"status_timestamps"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// IssueHistoryResponse response.
type IssueHistoryResponse struct {
	ID          string                 `json:"id"`
	ChangeType  domain.IssueChangeType `json:"change_type"`
	ChangedByID string                 `json:"changed_by_id,omitempty"`
	OldValue    map[string]any         `json:"old_value"`
	NewValue    map[string]any         `json:"new_value"`
	CreatedAt   time.Time              `json:"created_at"`
}
