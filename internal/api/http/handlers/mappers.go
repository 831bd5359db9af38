package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/domain"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

func callerPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("not authorized, no token")
	}
	return principal, nil
}

func validationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	fields := make([]map[string]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, map[string]string{
			"field": e.Field(),
			"rule":  e.Tag(),
		})
	}
	return apperrors.NewValidationError("validation error", map[string]any{"fields": fields})
}

func profileResponse(profile domain.UserProfile) dto.UserProfileResponse {
	return dto.UserProfileResponse{
		ID:         profile.ID,
		Name:       profile.Name,
		Email:      profile.Email,
		Role:       profile.Role,
		ProfileImg: profile.ProfileImg,
	}
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		UserProfileResponse: profileResponse(user.Profile()),
		CreatedAt:           user.CreatedAt,
		UpdatedAt:           user.UpdatedAt,
	}
}

func issueResponse(issue *domain.Issue) dto.IssueResponse {
	resp := dto.IssueResponse{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      issue.Status,
		AssignedTo:  issue.AssignedTo,
		CreatedBy:   issue.CreatedBy,
		StatusTimestamps: dto.StatusTimestampsResponse{
			Open:       issue.StatusTimestamps.Open,
			InProgress: issue.StatusTimestamps.InProgress,
			Closed:     issue.StatusTimestamps.Closed,
		},
		CreatedAt: issue.CreatedAt,
		UpdatedAt: issue.UpdatedAt,
	}
	if issue.Assignee != nil {
		profile := profileResponse(*issue.Assignee)
		resp.Assignee = &profile
	}
	return resp
}

func issueResponses(issues []domain.Issue) []dto.IssueResponse {
	items := make([]dto.IssueResponse, 0, len(issues))
	for i := range issues {
		items = append(items, issueResponse(&issues[i]))
	}
	return items
}

func historyResponses(history []domain.IssueHistory) []dto.IssueHistoryResponse {
	items := make([]dto.IssueHistoryResponse, 0, len(history))
	for _, h := range history {
		items = append(items, dto.IssueHistoryResponse{
			ID:          h.ID,
			ChangeType:  h.ChangeType,
			ChangedByID: h.ChangedByID,
			OldValue:    h.OldValue,
			NewValue:    h.NewValue,
			CreatedAt:   h.CreatedAt,
		})
	}
	return items
}
