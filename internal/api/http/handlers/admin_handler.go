package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// AdminHandler exposes administration endpoints.
type AdminHandler struct {
	issues   *service.IssueService
	staff    *service.StaffService
	payments *service.PaymentService
	stats    *service.StatsService
	validate *validator.Validate
}

// AdminDependencies bundles the services used by AdminHandler.
type AdminDependencies struct {
	Issues   *service.IssueService
	Staff    *service.StaffService
	Payments *service.PaymentService
	Stats    *service.StatsService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{
		issues:   deps.Issues,
		staff:    deps.Staff,
		payments: deps.Payments,
		stats:    deps.Stats,
		validate: validator.New(),
	}
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	stats, err := h.stats.AdminStats(c.UserContext(), email)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, stats)
}

// Issues handles GET /admin/issues.
func (h *AdminHandler) Issues(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	page, err := h.issues.ListAll(c.UserContext(), email, issueQueryFromQuery(c), pageFromQuery(c))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.MapPage(page, dto.NewIssueResponse))
}

// Assign handles PATCH /admin/issues/:id/assign.
func (h *AdminHandler) Assign(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.AssignIssueRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	issue, err := h.issues.Assign(c.UserContext(), c.Params("id"), email, req.StaffEmail)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewIssueResponse(*issue))
}

// Reject handles PATCH /admin/issues/:id/reject.
func (h *AdminHandler) Reject(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.RejectIssueRequest
	if len(c.Body()) > 0 {
		if err := bind(c, h.validate, &req); err != nil {
			return err
		}
	}
	issue, err := h.issues.Reject(c.UserContext(), c.Params("id"), email, req.Reason)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewIssueResponse(*issue))
}

// Users handles GET /admin/users.
func (h *AdminHandler) Users(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	page, err := h.staff.ListCitizens(c.UserContext(), email, c.Query("search"), pageFromQuery(c))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.MapPage(page, dto.NewUserResponse))
}

// SetBlocked handles PATCH /admin/users/:email/block.
func (h *AdminHandler) SetBlocked(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	target, err := pathEmail(c)
	if err != nil {
		return err
	}
	var req dto.BlockUserRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	if req.Blocked == nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"blocked": "is required"})
	}
	user, err := h.staff.SetBlocked(c.UserContext(), email, target, *req.Blocked)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserResponse(*user))
}

// ListStaff handles GET /admin/staff.
func (h *AdminHandler) ListStaff(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	page, err := h.staff.ListStaff(c.UserContext(), email, c.Query("search"), pageFromQuery(c))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.MapPage(page, dto.NewUserResponse))
}

// CreateStaff handles POST /admin/staff.
func (h *AdminHandler) CreateStaff(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.CreateStaffRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	user, err := h.staff.CreateStaff(c.UserContext(), email, service.StaffInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Phone:      req.Phone,
		PhotoURL:   req.PhotoURL,
		Department: req.Department,
	})
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewUserResponse(*user))
}

// UpdateStaff handles PATCH /admin/staff/:email.
func (h *AdminHandler) UpdateStaff(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	target, err := pathEmail(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStaffRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	user, err := h.staff.UpdateStaff(c.UserContext(), email, target, req.ProfileUpdate())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserResponse(*user))
}

// DeleteStaff handles DELETE /admin/staff/:email.
func (h *AdminHandler) DeleteStaff(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	target, err := pathEmail(c)
	if err != nil {
		return err
	}
	if err := h.staff.DeleteStaff(c.UserContext(), email, target); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Payments handles GET /admin/payments.
func (h *AdminHandler) Payments(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	ledger, err := h.payments.ListAll(c.UserContext(), email, c.Query("type"), pageFromQuery(c))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewPaymentLedgerResponse(ledger))
}

func pathEmail(c *fiber.Ctx) (string, error) {
	raw, err := url.PathUnescape(c.Params("email"))
	if err != nil || raw == "" {
		return "", apperrors.NewValidationError("invalid email in path", nil)
	}
	return raw, nil
}
