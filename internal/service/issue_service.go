package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// IssueService owns issue creation, update and deletion.
type IssueService struct {
	issues     repository.IssueRepository
	users      repository.UserRepository
	gate       *auth.Gate
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// IssueDependencies bundles collaborators for the issue services.
type IssueDependencies struct {
	IssueRepo  repository.IssueRepository
	UserRepo   repository.UserRepository
	Gate       *auth.Gate
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// IssueCreateInput describes issue creation payload.
type IssueCreateInput struct {
	Title       string
	Description string
	AssignedTo  *string
}

// IssueUpdateInput carries optional fields. Nil or blank values keep the stored value.
type IssueUpdateInput struct {
	Title       *string
	Description *string
	Status      *string
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	return &IssueService{
		issues:     deps.IssueRepo,
		users:      deps.UserRepo,
		gate:       gate,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        systemNow,
	}
}

// CreateIssue persists a new open issue created by the calling admin.
func (s *IssueService) CreateIssue(ctx context.Context, caller domain.Identity, input IssueCreateInput) (issue *domain.Issue, err error) {
	defer func() { s.metrics.RecordIssueOperation("create", outcome(err)) }()

	if err := s.gate.Authorize(caller, auth.OpCreateIssue); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError(msgTitleDescription, nil)
	}

	var assignee *domain.User
	if input.AssignedTo != nil && strings.TrimSpace(*input.AssignedTo) != "" {
		assignee, err = resolveTechnician(ctx, s.users, strings.TrimSpace(*input.AssignedTo))
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	issue = &domain.Issue{
		Title:            title,
		Description:      description,
		Status:           domain.IssueStatusOpen,
		CreatedBy:        caller.UserID,
		StatusTimestamps: domain.StatusTimestamps{Open: now},
	}
	if assignee != nil {
		issue.AssignedTo = &assignee.ID
	}

	if err := s.issues.Create(ctx, issue); err != nil {
		if errors.Is(err, repository.ErrInvalidReference) {
			return nil, apperrors.NewValidationError(msgInvalidTechnician, nil)
		}
		return nil, storeError(err, "")
	}
	if assignee != nil {
		profile := assignee.Profile()
		issue.Assignee = &profile
	}

	publish(ctx, s.dispatcher, s.logger, events.NewEvent(events.EventIssueCreated, issue.ID, caller.UserID, now,
		events.IssueCreatedPayload{Title: issue.Title, Status: issue.Status, AssignedTo: issue.AssignedTo}))
	return issue, nil
}

// UpdateIssue applies a partial update. A status change is committed only if
// the status read beforehand is still current, so concurrent transitions cannot
// both apply.
func (s *IssueService) UpdateIssue(ctx context.Context, caller domain.Identity, issueID string, input IssueUpdateInput) (issue *domain.Issue, err error) {
	defer func() { s.metrics.RecordIssueOperation("update", outcome(err)) }()

	if err := s.gate.Authorize(caller, auth.OpUpdateIssue); err != nil {
		return nil, err
	}
	if !validID(issueID) {
		return nil, issueNotFound(issueID)
	}

	patch := repository.IssuePatch{
		Title:       presentText(input.Title),
		Description: presentText(input.Description),
	}

	var nextStatus *domain.IssueStatus
	if raw := presentText(input.Status); raw != nil {
		status, ok := domain.ParseIssueStatus(*raw)
		if !ok {
			return nil, apperrors.NewValidationError(msgInvalidStatus, map[string]any{"status": *raw})
		}
		nextStatus = &status
	}

	current, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, storeError(err, issueID)
	}

	now := s.now()
	if nextStatus != nil && *nextStatus != current.Status {
		if !domain.CanTransition(current.Status, *nextStatus) {
			return nil, apperrors.NewConflict("invalid status transition", map[string]any{
				"from": current.Status,
				"to":   *nextStatus,
			})
		}
		expected := current.Status
		patch.Status = nextStatus
		patch.ExpectedStatus = &expected
		switch *nextStatus {
		case domain.IssueStatusInProgress:
			patch.InProgressAt = &now
		case domain.IssueStatusClosed:
			patch.ClosedAt = &now
		}
	}

	issue, err = s.issues.Patch(ctx, issueID, patch)
	if err != nil {
		return nil, storeError(err, issueID)
	}
	if err := populateAssignee(ctx, s.users, issue); err != nil {
		return nil, apperrors.MapError(err)
	}

	if patch.Status != nil {
		publish(ctx, s.dispatcher, s.logger, events.NewEvent(events.EventIssueStatusChanged, issue.ID, caller.UserID, now,
			events.IssueStatusChangedPayload{OldStatus: current.Status, NewStatus: issue.Status}))
	}
	return issue, nil
}

// DeleteIssue permanently removes an issue.
func (s *IssueService) DeleteIssue(ctx context.Context, caller domain.Identity, issueID string) (err error) {
	defer func() { s.metrics.RecordIssueOperation("delete", outcome(err)) }()

	if err := s.gate.Authorize(caller, auth.OpDeleteIssue); err != nil {
		return err
	}
	if !validID(issueID) {
		return issueNotFound(issueID)
	}

	existing, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return storeError(err, issueID)
	}
	if err := s.issues.Delete(ctx, issueID); err != nil {
		return storeError(err, issueID)
	}

	publish(ctx, s.dispatcher, s.logger, events.NewEvent(events.EventIssueDeleted, issueID, caller.UserID, s.now(),
		events.IssueDeletedPayload{Title: existing.Title, AssignedTo: existing.AssignedTo}))
	return nil
}

// resolveTechnician loads id as a technician or fails with the stable validation message.
func resolveTechnician(ctx context.Context, users repository.UserRepository, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, apperrors.NewValidationError(msgInvalidTechnician, map[string]any{"technician_id": id})
	}
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidationError(msgInvalidTechnician, map[string]any{"technician_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if user.Role != domain.RoleTechnician {
		return nil, apperrors.NewValidationError(msgInvalidTechnician, map[string]any{"technician_id": id})
	}
	return user, nil
}

// presentText implements fill-if-truthy: nil and blank strings are treated as absent.
func presentText(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
