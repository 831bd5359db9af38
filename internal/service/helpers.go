package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

const (
	msgIssueNotFound       = "issue not found"
	msgAlreadyAssigned     = "issue is already assigned to another technician"
	msgInvalidTechnician   = "invalid technician id or technician not found"
	msgTechnicianBusy      = "technician is already assigned to another active issue"
	msgTitleDescription    = "title and description are required"
	msgInvalidStatus       = "invalid status"
	msgInvalidIssueID      = "invalid issue id"
	msgStatusChanged       = "issue status changed concurrently, retry the update"
	msgAssignmentContended = "issue assignment is contended, retry later"
	msgLimitTooLarge       = "limit must not exceed 100"
)

// validID reports whether id is a well-formed identifier.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func issueNotFound(issueID string) error {
	return apperrors.NewDomainError(apperrors.CodeNotFound, msgIssueNotFound, http.StatusNotFound, map[string]any{"issue_id": issueID})
}

// storeError maps repository sentinels that are not specific to an operation.
func storeError(err error, issueID string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return issueNotFound(issueID)
	case errors.Is(err, repository.ErrTechnicianBusy):
		return apperrors.NewConflict(msgTechnicianBusy, nil)
	case errors.Is(err, repository.ErrStatusChanged):
		return apperrors.NewConflict(msgStatusChanged, map[string]any{"issue_id": issueID})
	default:
		return apperrors.MapError(err)
	}
}

// populateAssignees joins each assignee's public profile in one lookup.
func populateAssignees(ctx context.Context, users repository.UserRepository, issues []domain.Issue) error {
	ids := make([]string, 0, len(issues))
	seen := map[string]struct{}{}
	for _, issue := range issues {
		if !issue.IsAssigned() {
			continue
		}
		if _, ok := seen[*issue.AssignedTo]; ok {
			continue
		}
		seen[*issue.AssignedTo] = struct{}{}
		ids = append(ids, *issue.AssignedTo)
	}
	if len(ids) == 0 {
		return nil
	}

	found, err := users.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	profiles := make(map[string]*domain.UserProfile, len(found))
	for i := range found {
		profile := found[i].Profile()
		profiles[found[i].ID] = &profile
	}
	for i := range issues {
		if issues[i].IsAssigned() {
			issues[i].Assignee = profiles[*issues[i].AssignedTo]
		}
	}
	return nil
}

func populateAssignee(ctx context.Context, users repository.UserRepository, issue *domain.Issue) error {
	batch := []domain.Issue{*issue}
	if err := populateAssignees(ctx, users, batch); err != nil {
		return err
	}
	issue.Assignee = batch[0].Assignee
	return nil
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn("event subscriber failed",
			zap.String("event_type", string(event.Type)),
			zap.String("issue_id", event.IssueID),
			zap.Error(err))
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return apperrors.ToDomainError(err).Code
}

func systemNow() time.Time {
	return time.Now().UTC()
}
