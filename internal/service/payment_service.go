package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/paymentgateway"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

const (
	boostAttempts      = 3
	reconcileBatchSize = 50
)

// PaymentService turns settled gateway sessions into entitlements exactly once.
type PaymentService struct {
	payments   repository.PaymentRepository
	issueRepo  repository.IssueRepository
	issues     *IssueService
	gate       *AccessGate
	ledger     *LedgerService
	gateway    paymentgateway.Gateway
	cfg        config.PaymentConfig
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// PaymentDependencies bundles collaborators for the payment service.
type PaymentDependencies struct {
	PaymentRepo  repository.PaymentRepository
	IssueRepo    repository.IssueRepository
	IssueService *IssueService
	Gate         *AccessGate
	Ledger       *LedgerService
	Gateway      paymentgateway.Gateway
	Config       config.PaymentConfig
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// NewPaymentService constructs the service.
func NewPaymentService(deps PaymentDependencies) *PaymentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments:   deps.PaymentRepo,
		issueRepo:  deps.IssueRepo,
		issues:     deps.IssueService,
		gate:       deps.Gate,
		ledger:     deps.Ledger,
		gateway:    deps.Gateway,
		cfg:        deps.Config,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IntentInput selects what the citizen wants to buy.
type IntentInput struct {
	Type    string
	IssueID string
}

// CheckoutIntent is a created checkout the client redirects to.
type CheckoutIntent struct {
	Reference   string             `json:"reference"`
	RedirectURL string             `json:"redirectUrl"`
	Type        domain.PaymentType `json:"type"`
	Amount      int64              `json:"amount"`
	Currency    string             `json:"currency"`
}

// VerifyResult reports the outcome of a verification.
type VerifyResult struct {
	Payment            *domain.Payment
	AlreadyProcessed   bool
	EntitlementPending bool
}

// PaymentLedger is a page of payments plus the sum of completed amounts
// across the whole filter.
type PaymentLedger struct {
	Page        *Page[domain.Payment]
	TotalAmount int64
}

// CreateIntent opens a checkout for a boost or subscription. Nothing is stored locally.
func (s *PaymentService) CreateIntent(ctx context.Context, actorEmail string, in IntentInput) (*CheckoutIntent, error) {
	user, err := s.gate.Authorize(ctx, actorEmail, OpCreatePaymentIntent, nil)
	if err != nil {
		return nil, err
	}
	paymentType, err := domain.ParsePaymentType(strings.TrimSpace(in.Type))
	if err != nil {
		return nil, fieldValidation(err)
	}

	metadata := map[string]string{
		paymentgateway.MetadataType:      string(paymentType),
		paymentgateway.MetadataUserEmail: user.Email,
	}
	var amount int64
	var product string
	switch paymentType {
	case domain.PaymentTypeSubscription:
		if user.IsPremium {
			return nil, apperrors.NewInvalidState("account is already premium", nil)
		}
		amount = s.cfg.SubscriptionAmount
		product = "Premium subscription"
	case domain.PaymentTypeBoost:
		issueID := strings.TrimSpace(in.IssueID)
		if issueID == "" {
			return nil, apperrors.NewValidationError("issueId is required for a boost", map[string]any{"field": "issueId"})
		}
		issue, err := s.issues.load(ctx, issueID)
		if err != nil {
			return nil, err
		}
		if issue.ReporterEmail != user.Email {
			return nil, apperrors.NewForbidden("only the reporter can boost this issue")
		}
		if issue.Priority == domain.IssuePriorityHigh {
			return nil, apperrors.NewAlreadyBoosted(issue.ID)
		}
		metadata[paymentgateway.MetadataIssueID] = issue.ID
		amount = s.cfg.BoostAmount
		product = "Issue boost: " + issue.Title
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	defer cancel()
	checkout, err := s.gateway.CreateCheckout(callCtx, paymentgateway.CheckoutRequest{
		Amount:        amount,
		Currency:      s.cfg.Currency,
		ProductName:   product,
		CustomerEmail: user.Email,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, gatewayError(err)
	}
	return &CheckoutIntent{
		Reference:   checkout.Reference,
		RedirectURL: checkout.RedirectURL,
		Type:        paymentType,
		Amount:      amount,
		Currency:    s.cfg.Currency,
	}, nil
}

// Verify records a settled session and applies its entitlement. Verifying the
// same transaction again reports AlreadyProcessed and changes nothing.
func (s *PaymentService) Verify(ctx context.Context, actorEmail, sessionReference string) (*VerifyResult, error) {
	user, err := s.gate.Authorize(ctx, actorEmail, OpVerifyPayment, nil)
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(sessionReference)
	if reference == "" {
		return nil, apperrors.NewValidationError("session reference is required", map[string]any{"field": "sessionId"})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	session, err := s.gateway.RetrieveSession(callCtx, reference)
	cancel()
	if err != nil {
		return nil, gatewayError(err)
	}
	if !session.Paid() {
		s.metrics.RecordPaymentVerified(session.Metadata[paymentgateway.MetadataType], "unpaid")
		return nil, apperrors.NewPaymentNotCompleted(session.PaymentStatus)
	}
	if domain.NormalizeEmail(session.Metadata[paymentgateway.MetadataUserEmail]) != user.Email {
		return nil, apperrors.NewForbidden("payment belongs to another user")
	}
	paymentType, err := domain.ParsePaymentType(session.Metadata[paymentgateway.MetadataType])
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("session %s: %w", reference, err))
	}
	transactionID := session.TransactionID
	if transactionID == "" {
		transactionID = session.Reference
	}

	existing, err := s.payments.GetByTransactionID(ctx, transactionID)
	switch {
	case err == nil:
		s.metrics.RecordPaymentVerified(string(paymentType), "duplicate")
		return processed(existing), nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewInternalError(err)
	}

	payment := &domain.Payment{
		ID:               uuid.NewString(),
		Type:             paymentType,
		Amount:           session.AmountTotal,
		Currency:         session.Currency,
		TransactionID:    transactionID,
		SessionReference: session.Reference,
		UserEmail:        user.Email,
		UserName:         user.DisplayName(),
		IssueID:          session.Metadata[paymentgateway.MetadataIssueID],
		Status:           domain.PaymentStatusCompleted,
		CreatedAt:        s.now(),
	}
	if payment.IssueID != "" {
		if issue, err := s.issueRepo.GetByID(ctx, payment.IssueID); err == nil {
			payment.IssueTitle = issue.Title
		}
	}

	inserted, err := s.payments.Insert(ctx, payment)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !inserted {
		winner, err := s.payments.GetByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		s.metrics.RecordPaymentVerified(string(paymentType), "duplicate")
		return processed(winner), nil
	}

	if err := s.applyEntitlement(ctx, payment); err != nil {
		s.logger.Error("entitlement not applied, left for reconciliation",
			zap.String("payment_id", payment.ID),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err))
		s.metrics.RecordPaymentVerified(string(paymentType), "entitlement_pending")
		return &VerifyResult{Payment: payment, EntitlementPending: true}, nil
	}
	s.metrics.RecordPaymentVerified(string(paymentType), "processed")
	return &VerifyResult{Payment: payment}, nil
}

func processed(p *domain.Payment) *VerifyResult {
	return &VerifyResult{Payment: p, AlreadyProcessed: true, EntitlementPending: !p.EntitlementApplied}
}

// Reconcile applies entitlements for completed payments that never got one.
// It returns how many were applied.
func (s *PaymentService) Reconcile(ctx context.Context) (int, error) {
	pending, err := s.payments.ListPendingEntitlements(ctx, s.now().Add(-s.cfg.ReconcileGrace()), reconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending entitlements: %w", err)
	}
	applied := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		payment := &pending[i]
		if err := s.applyEntitlement(ctx, payment); err != nil {
			s.logger.Warn("reconcile entitlement failed",
				zap.String("payment_id", payment.ID),
				zap.Error(err))
			continue
		}
		s.metrics.IncrementReconciled()
		applied++
	}
	return applied, nil
}

func (s *PaymentService) applyEntitlement(ctx context.Context, payment *domain.Payment) error {
	switch payment.Type {
	case domain.PaymentTypeSubscription:
		if err := s.ledger.GrantPremium(ctx, payment.UserEmail); err != nil {
			return err
		}
	case domain.PaymentTypeBoost:
		if err := s.boostWithRetry(ctx, payment); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown payment type %q", payment.Type)
	}

	at := s.now()
	if err := s.payments.MarkEntitlementApplied(ctx, payment.ID, at); err != nil {
		return fmt.Errorf("mark entitlement applied: %w", err)
	}
	payment.EntitlementApplied = true
	payment.EntitlementAppliedAt = &at

	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:    events.EventPaymentCompleted,
		IssueID: payment.IssueID,
		Actor:   domain.Actor{Email: payment.UserEmail, Role: domain.ActorRoleCitizen},
		Payload: events.PaymentCompletedPayload{
			PaymentID:     payment.ID,
			TransactionID: payment.TransactionID,
			Type:          payment.Type,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
		},
	})
	return nil
}

// boostWithRetry retries on concurrent issue updates. An issue that is
// already High or no longer exists counts as done.
func (s *PaymentService) boostWithRetry(ctx context.Context, payment *domain.Payment) error {
	if payment.IssueID == "" {
		s.logger.Warn("boost payment without issue", zap.String("payment_id", payment.ID))
		return nil
	}
	actor := domain.Actor{Email: payment.UserEmail, Role: domain.ActorRoleCitizen}

	var err error
	for attempt := 0; attempt < boostAttempts; attempt++ {
		_, err = s.issues.Boost(ctx, payment.IssueID, actor)
		switch {
		case err == nil:
			return nil
		case apperrors.HasCode(err, apperrors.CodeAlreadyBoosted):
			return nil
		case apperrors.HasCode(err, apperrors.CodeNotFound):
			s.logger.Warn("boosted issue no longer exists",
				zap.String("payment_id", payment.ID),
				zap.String("issue_id", payment.IssueID))
			return nil
		case apperrors.HasCode(err, apperrors.CodeConflict):
			s.metrics.IncrementEntitlementRetries()
			continue
		default:
			return err
		}
	}
	return err
}

// ListForUser returns the caller's payments and their total spend.
func (s *PaymentService) ListForUser(ctx context.Context, actorEmail string, page PageRequest) (*PaymentLedger, error) {
	user, err := s.gate.Authorize(ctx, actorEmail, OpReadOwnPayments, nil)
	if err != nil {
		return nil, err
	}
	return s.ledgerFor(ctx, repository.PaymentFilter{UserEmail: &user.Email}, page)
}

// ListAll is the admin payment listing with total revenue.
func (s *PaymentService) ListAll(ctx context.Context, adminEmail, paymentType string, page PageRequest) (*PaymentLedger, error) {
	if _, err := s.gate.Authorize(ctx, adminEmail, OpReadAllPayments, nil); err != nil {
		return nil, err
	}
	var filter repository.PaymentFilter
	if paymentType != "" {
		t, err := domain.ParsePaymentType(paymentType)
		if err != nil {
			return nil, fieldValidation(err)
		}
		filter.Type = &t
	}
	return s.ledgerFor(ctx, filter, page)
}

func (s *PaymentService) ledgerFor(ctx context.Context, filter repository.PaymentFilter, page PageRequest) (*PaymentLedger, error) {
	filter.Limit, filter.Offset = page.limitOffset()
	items, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	summary, err := s.payments.Summarize(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &PaymentLedger{Page: newPage(items, total, page), TotalAmount: summary.TotalAmount}, nil
}

// Invoice returns one payment to its owner or an admin.
func (s *PaymentService) Invoice(ctx context.Context, actorEmail, paymentID string) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("payment", map[string]any{"payment_id": paymentID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if _, err := s.gate.Authorize(ctx, actorEmail, OpReadInvoice, &Resource{OwnerEmail: payment.UserEmail}); err != nil {
		return nil, err
	}
	return payment, nil
}

func gatewayError(err error) error {
	switch {
	case errors.Is(err, paymentgateway.ErrSessionNotFound):
		return apperrors.NewNotFound("payment session", nil)
	case errors.Is(err, paymentgateway.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewGatewayUnavailable(err)
	default:
		return apperrors.NewInternalError(err)
	}
}
