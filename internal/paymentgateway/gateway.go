package paymentgateway

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable covers timeouts, transport failures and gateway 5xx responses.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrSessionNotFound means the gateway does not know the session reference.
	ErrSessionNotFound = errors.New("checkout session not found")
)

// PaymentStatusPaid is the only session status that settles a payment.
const PaymentStatusPaid = "paid"

// Metadata keys attached to every checkout and echoed back on the session.
const (
	MetadataType      = "type"
	MetadataUserEmail = "userEmail"
	MetadataIssueID   = "issueId"
)

// CheckoutRequest describes a hosted checkout. Amount is in whole currency units.
type CheckoutRequest struct {
	Amount        int64
	Currency      string
	ProductName   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Checkout is a created hosted checkout.
type Checkout struct {
	Reference   string
	RedirectURL string
}

// Session is the gateway's view of a checkout. TransactionID identifies the
// captured payment and is stable across retrievals.
type Session struct {
	Reference     string
	PaymentStatus string
	TransactionID string
	CustomerEmail string
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
}

// Paid reports whether the session settled.
func (s *Session) Paid() bool {
	return s != nil && s.PaymentStatus == PaymentStatusPaid
}

// Gateway is the external payment processor.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	RetrieveSession(ctx context.Context, reference string) (*Session, error)
}
