package dto

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/service"
)

// CreateIntentRequest payload. IssueID is checked by the payment service for boosts.
type CreateIntentRequest struct {
	Type    string `json:"type" validate:"required,oneof=boost subscription"`
	IssueID string `json:"issueId"`
}

// VerifyPaymentRequest payload.
type VerifyPaymentRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// PaymentResponse is a stored payment.
type PaymentResponse struct {
	ID                 string               `json:"id"`
	Type               domain.PaymentType   `json:"type"`
	Amount             int64                `json:"amount"`
	Currency           string               `json:"currency"`
	TransactionID      string               `json:"transactionId"`
	UserEmail          string               `json:"userEmail"`
	UserName           string               `json:"userName,omitempty"`
	IssueID            string               `json:"issueId,omitempty"`
	IssueTitle         string               `json:"issueTitle,omitempty"`
	Status             domain.PaymentStatus `json:"status"`
	EntitlementApplied bool                 `json:"entitlementApplied"`
	CreatedAt          time.Time            `json:"createdAt"`
}

// NewPaymentResponse maps a domain payment.
func NewPaymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                 p.ID,
		Type:               p.Type,
		Amount:             p.Amount,
		Currency:           p.Currency,
		TransactionID:      p.TransactionID,
		UserEmail:          p.UserEmail,
		UserName:           p.UserName,
		IssueID:            p.IssueID,
		IssueTitle:         p.IssueTitle,
		Status:             p.Status,
		EntitlementApplied: p.EntitlementApplied,
		CreatedAt:          p.CreatedAt,
	}
}

// VerifyPaymentResponse reports a verification outcome.
type VerifyPaymentResponse struct {
	Payment            PaymentResponse `json:"payment"`
	AlreadyProcessed   bool            `json:"alreadyProcessed"`
	EntitlementPending bool            `json:"entitlementPending"`
}

// NewVerifyPaymentResponse maps a verify result.
func NewVerifyPaymentResponse(res *service.VerifyResult) VerifyPaymentResponse {
	return VerifyPaymentResponse{
		Payment:            NewPaymentResponse(*res.Payment),
		AlreadyProcessed:   res.AlreadyProcessed,
		EntitlementPending: res.EntitlementPending,
	}
}

// PaymentLedgerResponse is a page of payments with the filter-wide total.
type PaymentLedgerResponse struct {
	Payments    PageResponse[PaymentResponse] `json:"payments"`
	TotalAmount int64                         `json:"totalAmount"`
}

// NewPaymentLedgerResponse maps a payment ledger.
func NewPaymentLedgerResponse(ledger *service.PaymentLedger) PaymentLedgerResponse {
	return PaymentLedgerResponse{
		Payments:    MapPage(ledger.Page, NewPaymentResponse),
		TotalAmount: ledger.TotalAmount,
	}
}
