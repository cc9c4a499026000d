package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/paymentgateway"
	"github.com/spec-kit/issue-service/internal/service"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// PaymentsHandler exposes checkout and payment history endpoints.
type PaymentsHandler struct {
	payments *service.PaymentService
	sandbox  *paymentgateway.Sandbox
	validate *validator.Validate
}

// NewPaymentsHandler constructs handler. sandbox is nil unless the service
// runs against the in-process gateway.
func NewPaymentsHandler(payments *service.PaymentService, sandbox *paymentgateway.Sandbox) *PaymentsHandler {
	return &PaymentsHandler{payments: payments, sandbox: sandbox, validate: validator.New()}
}

// CreateIntent handles POST /payments/intents.
func (h *PaymentsHandler) CreateIntent(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.CreateIntentRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	intent, err := h.payments.CreateIntent(c.UserContext(), email, service.IntentInput{Type: req.Type, IssueID: req.IssueID})
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, intent)
}

// Verify handles POST /payments/verify.
func (h *PaymentsHandler) Verify(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.VerifyPaymentRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	res, err := h.payments.Verify(c.UserContext(), email, req.SessionID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewVerifyPaymentResponse(res))
}

// Mine handles GET /payments/mine.
func (h *PaymentsHandler) Mine(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	ledger, err := h.payments.ListForUser(c.UserContext(), email, pageFromQuery(c))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewPaymentLedgerResponse(ledger))
}

// Invoice handles GET /payments/:id/invoice.
func (h *PaymentsHandler) Invoice(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	payment, err := h.payments.Invoice(c.UserContext(), email, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewPaymentResponse(*payment))
}

// SandboxComplete handles GET /payments/sandbox/:reference/complete, the
// redirect target of sandbox checkouts. It marks the session paid and
// forwards the browser to the success URL.
func (h *PaymentsHandler) SandboxComplete(c *fiber.Ctx) error {
	if h.sandbox == nil {
		return apperrors.NewNotFound("route", nil)
	}
	successURL, err := h.sandbox.Complete(c.Params("reference"))
	if err != nil {
		if errors.Is(err, paymentgateway.ErrSessionNotFound) {
			return apperrors.NewNotFound("payment session", nil)
		}
		return err
	}
	if successURL == "" {
		return data(c, http.StatusOK, fiber.Map{"reference": c.Params("reference"), "status": paymentgateway.PaymentStatusPaid})
	}
	return c.Redirect(successURL, http.StatusSeeOther)
}
