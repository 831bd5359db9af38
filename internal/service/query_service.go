package service

import (
	"context"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

const (
	// DefaultLatestLimit is used when listLatest is called without a positive limit.
	DefaultLatestLimit = 5
	// MaxLatestLimit is the largest page listLatest serves; larger requests are rejected.
	MaxLatestLimit = 100
)

// QueryService is the read side. Visibility is always decided by the gate and
// the caller's role before the store is consulted.
type QueryService struct {
	issues  repository.IssueRepository
	users   repository.UserRepository
	history repository.IssueHistoryRepository
	gate    *auth.Gate
}

// QueryDependencies bundles read-side collaborators.
type QueryDependencies struct {
	IssueRepo   repository.IssueRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.IssueHistoryRepository
	Gate        *auth.Gate
}

// NewQueryService builds the service.
func NewQueryService(deps QueryDependencies) *QueryService {
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	return &QueryService{
		issues:  deps.IssueRepo,
		users:   deps.UserRepo,
		history: deps.HistoryRepo,
		gate:    gate,
	}
}

// ListAll returns every issue to admins and only the caller's own issues to technicians.
func (s *QueryService) ListAll(ctx context.Context, caller domain.Identity) ([]domain.Issue, error) {
	if err := s.gate.Authorize(caller, auth.OpListAll); err != nil {
		return nil, err
	}

	filter := repository.IssueFilter{}
	if !caller.IsAdmin() {
		filter.AssigneeID = &caller.UserID
	}
	issues, err := s.issues.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return issues, nil
}

// ListByStatus filters by status. Admin results carry assignee profiles;
// technician results are limited to their own issues and left unpopulated.
func (s *QueryService) ListByStatus(ctx context.Context, caller domain.Identity, rawStatus string) ([]domain.Issue, error) {
	if err := s.gate.Authorize(caller, auth.OpListByStatus); err != nil {
		return nil, err
	}
	status, ok := domain.ParseIssueStatus(rawStatus)
	if !ok {
		return nil, apperrors.NewValidationError(msgInvalidStatus, map[string]any{"status": rawStatus})
	}

	filter := repository.IssueFilter{Status: &status}
	if !caller.IsAdmin() {
		filter.AssigneeID = &caller.UserID
	}
	issues, err := s.issues.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if caller.IsAdmin() {
		if err := populateAssignees(ctx, s.users, issues); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	return issues, nil
}

// GetSingle returns one issue with its assignee populated.
func (s *QueryService) GetSingle(ctx context.Context, caller domain.Identity, issueID string) (*domain.Issue, error) {
	if err := s.gate.Authorize(caller, auth.OpGetIssue); err != nil {
		return nil, err
	}
	if !validID(issueID) {
		return nil, apperrors.NewValidationError(msgInvalidIssueID, map[string]any{"issue_id": issueID})
	}

	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, storeError(err, issueID)
	}
	if err := populateAssignee(ctx, s.users, issue); err != nil {
		return nil, apperrors.MapError(err)
	}
	return issue, nil
}

// ListLatest returns up to limit of the most recently created issues, newest first.
func (s *QueryService) ListLatest(ctx context.Context, caller domain.Identity, limit int) ([]domain.Issue, error) {
	if err := s.gate.Authorize(caller, auth.OpListLatest); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	if limit > MaxLatestLimit {
		return nil, apperrors.NewValidationError(msgLimitTooLarge, map[string]any{"limit": limit, "max": MaxLatestLimit})
	}

	issues, err := s.issues.List(ctx, repository.IssueFilter{Limit: limit})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := populateAssignees(ctx, s.users, issues); err != nil {
		return nil, apperrors.MapError(err)
	}
	return issues, nil
}

// GetHistory returns the audit trail of an issue, oldest first.
func (s *QueryService) GetHistory(ctx context.Context, caller domain.Identity, issueID string) ([]domain.IssueHistory, error) {
	if err := s.gate.Authorize(caller, auth.OpViewHistory); err != nil {
		return nil, err
	}
	if !validID(issueID) {
		return nil, apperrors.NewValidationError(msgInvalidIssueID, map[string]any{"issue_id": issueID})
	}
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		return nil, storeError(err, issueID)
	}

	entries, err := s.history.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}
