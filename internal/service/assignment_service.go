package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// maxAssignAttempts bounds retries when a rejected write cannot be explained
// by any precondition, which only happens while another writer is mid-flight.
const maxAssignAttempts = 3

// AssignmentService handles issue assignment.
type AssignmentService struct {
	issues     repository.IssueRepository
	users      repository.UserRepository
	gate       *auth.Gate
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps IssueDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	return &AssignmentService{
		issues:     deps.IssueRepo,
		users:      deps.UserRepo,
		gate:       gate,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        systemNow,
	}
}

// AssignIssue gives an unassigned issue to an idle technician. The mutation is a
// single conditional write in the store; the lookups that follow a rejection
// only pick the error to report and never write.
func (s *AssignmentService) AssignIssue(ctx context.Context, caller domain.Identity, issueID, technicianID string) (issue *domain.Issue, err error) {
	defer func() { s.metrics.RecordIssueOperation("assign", outcome(err)) }()

	if err := s.gate.Authorize(caller, auth.OpAssignIssue); err != nil {
		return nil, err
	}
	if !validID(issueID) {
		return nil, issueNotFound(issueID)
	}
	if !validID(technicianID) {
		return nil, apperrors.NewValidationError(msgInvalidTechnician, map[string]any{"technician_id": technicianID})
	}

	for attempt := 1; attempt <= maxAssignAttempts; attempt++ {
		now := s.now()
		issue, err = s.issues.Assign(ctx, issueID, technicianID, now)
		switch {
		case err == nil:
			return s.finishAssignment(ctx, caller, issue, technicianID, now)
		case errors.Is(err, repository.ErrAssignRejected):
			if cause := s.classifyRejection(ctx, issueID, technicianID); cause != nil {
				return nil, cause
			}
			s.logger.Debug("assignment rejected without visible cause, retrying",
				zap.String("issue_id", issueID),
				zap.Int("attempt", attempt))
		default:
			return nil, storeError(err, issueID)
		}
	}
	return nil, apperrors.NewConflict(msgAssignmentContended, map[string]any{"issue_id": issueID})
}

func (s *AssignmentService) finishAssignment(ctx context.Context, caller domain.Identity, issue *domain.Issue, technicianID string, at time.Time) (*domain.Issue, error) {
	technician, err := s.users.GetByID(ctx, technicianID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	profile := technician.Profile()
	issue.Assignee = &profile

	publish(ctx, s.dispatcher, s.logger, events.NewEvent(events.EventIssueAssigned, issue.ID, caller.UserID, at,
		events.IssueAssignedPayload{
			TechnicianID:    technician.ID,
			TechnicianEmail: technician.Email,
			Status:          issue.Status,
		}))
	return issue, nil
}

// classifyRejection returns the first failed precondition, in the order
// issue exists, issue unassigned, technician valid, technician idle.
func (s *AssignmentService) classifyRejection(ctx context.Context, issueID, technicianID string) error {
	current, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return storeError(err, issueID)
	}
	if current.IsAssigned() {
		return apperrors.NewConflict(msgAlreadyAssigned, map[string]any{"issue_id": issueID})
	}

	if _, err := resolveTechnician(ctx, s.users, technicianID); err != nil {
		return err
	}

	active, err := s.issues.FindActiveByAssignee(ctx, technicianID)
	switch {
	case err == nil:
		return apperrors.NewConflict(msgTechnicianBusy, map[string]any{
			"technician_id":   technicianID,
			"active_issue_id": active.ID,
		})
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return apperrors.MapError(err)
	}
}
