package handlers

import (
	"net/http"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
)

// StaffHandler exposes the field staff workspace.
type StaffHandler struct {
	issues   *service.IssueService
	stats    *service.StatsService
	validate *validator.Validate
}

// NewStaffHandler constructs handler.
func NewStaffHandler(issues *service.IssueService, stats *service.StatsService) *StaffHandler {
	return &StaffHandler{issues: issues, stats: stats, validate: validator.New()}
}

// AssignedIssues handles GET /staff/issues.
func (h *StaffHandler) AssignedIssues(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	page, err := h.issues.ListAssigned(c.UserContext(), email, issueQueryFromQuery(c), pageFromQuery(c))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.MapPage(page, dto.NewIssueResponse))
}

// Stats handles GET /staff/stats.
func (h *StaffHandler) Stats(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	stats, err := h.stats.StaffStats(c.UserContext(), email)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, stats)
}

// TransitionStatus handles PATCH /staff/issues/:id/status.
func (h *StaffHandler) TransitionStatus(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.TransitionStatusRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	issue, err := h.issues.TransitionStatus(c.UserContext(), c.Params("id"), email, req.Status)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewIssueResponse(*issue))
}
