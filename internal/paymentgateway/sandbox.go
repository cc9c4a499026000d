package paymentgateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type sandboxSession struct {
	session    Session
	successURL string
	cancelURL  string
}

// Sandbox is an in-process gateway for development and tests. Checkouts stay
// unpaid until Complete is called for their reference.
type Sandbox struct {
	mu       sync.Mutex
	baseURL  string
	sessions map[string]*sandboxSession
}

// NewSandbox creates a sandbox whose redirect URLs point at baseURL.
func NewSandbox(baseURL string) *Sandbox {
	return &Sandbox{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: make(map[string]*sandboxSession),
	}
}

// CreateCheckout records an unpaid session.
func (s *Sandbox) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref := "cs_sandbox_" + uuid.NewString()
	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[ref] = &sandboxSession{
		session: Session{
			Reference:     ref,
			PaymentStatus: "unpaid",
			CustomerEmail: req.CustomerEmail,
			AmountTotal:   req.Amount,
			Currency:      req.Currency,
			Metadata:      metadata,
		},
		successURL: req.SuccessURL,
		cancelURL:  req.CancelURL,
	}
	return &Checkout{Reference: ref, RedirectURL: s.baseURL + "/payments/sandbox/" + ref + "/complete"}, nil
}

// RetrieveSession returns a copy of the session.
func (s *Sandbox) RetrieveSession(ctx context.Context, reference string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[reference]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := stored.session
	out.Metadata = make(map[string]string, len(stored.session.Metadata))
	for k, v := range stored.session.Metadata {
		out.Metadata[k] = v
	}
	return &out, nil
}

// Complete marks the session paid and returns the success URL with the session
// reference filled in. Completing twice keeps the first transaction id.
func (s *Sandbox) Complete(reference string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[reference]
	if !ok {
		return "", ErrSessionNotFound
	}
	if stored.session.PaymentStatus != PaymentStatusPaid {
		stored.session.PaymentStatus = PaymentStatusPaid
		stored.session.TransactionID = "pi_sandbox_" + uuid.NewString()
	}
	return strings.ReplaceAll(stored.successURL, "{CHECKOUT_SESSION_ID}", reference), nil
}
