package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// DefaultFreeIssueLimit is the number of issues a non-premium citizen may hold.
const DefaultFreeIssueLimit = 3

// LedgerService keeps the per-user issue counter and premium entitlement.
type LedgerService struct {
	users     repository.UserRepository
	freeLimit int
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewLedgerService constructs the ledger. A negative freeLimit falls back to the default.
func NewLedgerService(users repository.UserRepository, freeLimit int, logger *zap.Logger, metrics *observability.Metrics) *LedgerService {
	if freeLimit < 0 {
		freeLimit = DefaultFreeIssueLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{users: users, freeLimit: freeLimit, logger: logger, metrics: metrics}
}

// FreeLimit returns the configured free issue allowance.
func (l *LedgerService) FreeLimit() int {
	return l.freeLimit
}

// CheckAndReserve takes one issue slot for email.
func (l *LedgerService) CheckAndReserve(ctx context.Context, email string) (*domain.User, error) {
	// the second pass covers a user who became eligible between the failed
	// increment and the classifying read.
	for attempt := 0; attempt < 2; attempt++ {
		user, err := l.users.ReserveIssueSlot(ctx, email, l.freeLimit)
		if err == nil {
			return user, nil
		}
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewUnauthenticated("unknown user")
		case !errors.Is(err, repository.ErrPreconditionFailed):
			return nil, apperrors.NewInternalError(err)
		}

		current, err := l.users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewUnauthenticated("unknown user")
			}
			return nil, apperrors.NewInternalError(err)
		}
		if current.IsBlocked {
			return nil, apperrors.NewBlocked()
		}
		if !current.IsPremium && current.IssuesReportedCount >= l.freeLimit {
			l.metrics.IncrementQuotaRejections()
			return nil, apperrors.NewQuotaExceeded(l.freeLimit)
		}
	}
	return nil, apperrors.NewConflict("issue quota changed concurrently, retry", nil)
}

// Release gives back one issue slot. A counter already at zero is logged as
// an anomaly and otherwise ignored.
func (l *LedgerService) Release(ctx context.Context, email string) error {
	_, err := l.users.ReleaseIssueSlot(ctx, email)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrPreconditionFailed):
		l.metrics.IncrementLedgerAnomalies()
		l.logger.Warn("issue counter already zero on release", zap.String("user", email))
		return nil
	case errors.Is(err, repository.ErrNotFound):
		l.metrics.IncrementLedgerAnomalies()
		l.logger.Warn("release for unknown user", zap.String("user", email))
		return nil
	default:
		return apperrors.NewInternalError(err)
	}
}

// GrantPremium sets the premium flag. Granting twice is a no-op.
func (l *LedgerService) GrantPremium(ctx context.Context, email string) error {
	changed, err := l.users.GrantPremium(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("user", map[string]any{"email": email})
		}
		return apperrors.NewInternalError(err)
	}
	if changed {
		l.logger.Info("premium granted", zap.String("user", email))
	}
	return nil
}
