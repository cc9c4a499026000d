package domain

import (
	"fmt"
	"time"
)

// PaymentType distinguishes what a payment buys.
type PaymentType string

const (
	PaymentTypeBoost        PaymentType = "boost"
	PaymentTypeSubscription PaymentType = "subscription"
)

// ParsePaymentType validates a raw payment type.
func ParsePaymentType(raw string) (PaymentType, error) {
	switch PaymentType(raw) {
	case PaymentTypeBoost, PaymentTypeSubscription:
		return PaymentType(raw), nil
	}
	return "", &FieldError{Field: "type", Reason: fmt.Sprintf("unknown payment type %q", raw)}
}

// PaymentStatus tracks settlement of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment records a verified external transaction. TransactionID is unique and
// is the idempotency key for verification.
type Payment struct {
	ID                   string
	Type                 PaymentType
	Amount               int64
	Currency             string
	TransactionID        string
	SessionReference     string
	UserEmail            string
	UserName             string
	IssueID              string
	IssueTitle           string
	Status               PaymentStatus
	EntitlementApplied   bool
	EntitlementAppliedAt *time.Time
	CreatedAt            time.Time
}
