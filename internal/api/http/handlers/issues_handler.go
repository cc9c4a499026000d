package handlers

import (
	"net/http"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
)

// IssuesHandler exposes public and citizen issue endpoints.
type IssuesHandler struct {
	issues   *service.IssueService
	stats    *service.StatsService
	validate *validator.Validate
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issues *service.IssueService, stats *service.StatsService) *IssuesHandler {
	return &IssuesHandler{issues: issues, stats: stats, validate: validator.New()}
}

// List handles GET /issues.
func (h *IssuesHandler) List(c *fiber.Ctx) error {
	page, err := h.issues.ListPublic(c.UserContext(), issueQueryFromQuery(c), pageFromQuery(c))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.MapPage(page, dto.NewIssueResponse))
}

// LatestResolved handles GET /issues/latest-resolved.
func (h *IssuesHandler) LatestResolved(c *fiber.Ctx) error {
	issues, err := h.issues.LatestResolved(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewIssueResponses(issues))
}

// Get handles GET /issues/:id.
func (h *IssuesHandler) Get(c *fiber.Ctx) error {
	issue, err := h.issues.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewIssueResponse(*issue))
}

// Create handles POST /issues.
func (h *IssuesHandler) Create(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.CreateIssueRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	issue, err := h.issues.Create(c.UserContext(), email, req.Draft())
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewIssueResponse(*issue))
}

// Update handles PATCH /issues/:id.
func (h *IssuesHandler) Update(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.UpdateIssueRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	issue, err := h.issues.Edit(c.UserContext(), c.Params("id"), email, req.Patch())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewIssueResponse(*issue))
}

// Delete handles DELETE /issues/:id.
func (h *IssuesHandler) Delete(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	if err := h.issues.Delete(c.UserContext(), c.Params("id"), email); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Upvote handles PATCH /issues/:id/upvote.
func (h *IssuesHandler) Upvote(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	count, err := h.issues.Upvote(c.UserContext(), c.Params("id"), email)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.UpvoteResponse{Upvotes: count})
}

// Mine handles GET /issues/mine.
func (h *IssuesHandler) Mine(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	page, err := h.issues.ListForReporter(c.UserContext(), email, issueQueryFromQuery(c), pageFromQuery(c))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.MapPage(page, dto.NewIssueResponse))
}

// MineStats handles GET /issues/mine/stats.
func (h *IssuesHandler) MineStats(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	stats, err := h.stats.CitizenStats(c.UserContext(), email)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, stats)
}
