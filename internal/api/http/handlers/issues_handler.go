package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// IssuesHandler exposes the issue lifecycle and query endpoints.
type IssuesHandler struct {
	issues      *service.IssueService
	assignments *service.AssignmentService
	queries     *service.QueryService
	validator   *validator.Validate
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issues *service.IssueService, assignments *service.AssignmentService, queries *service.QueryService) *IssuesHandler {
	return &IssuesHandler{
		issues:      issues,
		assignments: assignments,
		queries:     queries,
		validator:   validator.New(),
	}
}

// Create handles POST /issues/create.
func (h *IssuesHandler) Create(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(err)
	}

	issue, err := h.issues.CreateIssue(c.UserContext(), principal.Identity, service.IssueCreateInput{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "issue created successfully",
		"data":    issueResponse(issue),
	})
}

// Assign handles POST /issues/assign.
func (h *IssuesHandler) Assign(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(err)
	}

	issue, err := h.assignments.AssignIssue(c.UserContext(), principal.Identity, req.IssueID, req.TechnicianID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "issue assigned successfully",
		"data":    issueResponse(issue),
	})
}

// Update handles PUT /issues/update/:issueId.
func (h *IssuesHandler) Update(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(err)
	}

	issue, err := h.issues.UpdateIssue(c.UserContext(), principal.Identity, c.Params("issueId"), service.IssueUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// Delete handles DELETE /issues/delete/:issueId.
func (h *IssuesHandler) Delete(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.issues.DeleteIssue(c.UserContext(), principal.Identity, c.Params("issueId")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "issue deleted successfully"})
}

// ListAll handles GET /issues/all.
func (h *IssuesHandler) ListAll(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	issues, err := h.queries.ListAll(c.UserContext(), principal.Identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponses(issues)})
}

// ListByStatus handles GET /issues/status?status=.
func (h *IssuesHandler) ListByStatus(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	issues, err := h.queries.ListByStatus(c.UserContext(), principal.Identity, c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"count": len(issues),
		"data":  issueResponses(issues),
	})
}

// Latest handles GET /issues/latest?limit=.
func (h *IssuesHandler) Latest(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	limit := service.DefaultLatestLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return apperrors.NewValidationError("limit must be a positive integer", map[string]any{"limit": raw})
		}
		if limit > service.MaxLatestLimit {
			return apperrors.NewValidationError("limit must not exceed 100", map[string]any{"limit": raw, "max": service.MaxLatestLimit})
		}
	}
	issues, err := h.queries.ListLatest(c.UserContext(), principal.Identity, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponses(issues)})
}

// Get handles GET /issues/:issueId.
func (h *IssuesHandler) Get(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	issue, err := h.queries.GetSingle(c.UserContext(), principal.Identity, c.Params("issueId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// History handles GET /issues/:issueId/history.
func (h *IssuesHandler) History(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	history, err := h.queries.GetHistory(c.UserContext(), principal.Identity, c.Params("issueId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(history)})
}
