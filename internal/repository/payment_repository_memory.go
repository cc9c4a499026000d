package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

type inMemoryPaymentRepository struct {
	mu            sync.RWMutex
	byID          map[string]*domain.Payment
	byTransaction map[string]string
}

// NewInMemoryPaymentRepository returns a process-local payment store.
func NewInMemoryPaymentRepository() PaymentRepository {
	return &inMemoryPaymentRepository{
		byID:          make(map[string]*domain.Payment),
		byTransaction: make(map[string]string),
	}
}

func (r *inMemoryPaymentRepository) Insert(_ context.Context, payment *domain.Payment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTransaction[payment.TransactionID]; exists {
		return false, nil
	}
	if _, exists := r.byID[payment.ID]; exists {
		return false, ErrDuplicate
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	stored := copyPayment(payment)
	r.byID[payment.ID] = stored
	r.byTransaction[payment.TransactionID] = payment.ID
	return true, nil
}

func (r *inMemoryPaymentRepository) GetByTransactionID(_ context.Context, transactionID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTransaction[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPayment(r.byID[id]), nil
}

func (r *inMemoryPaymentRepository) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payment, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPayment(payment), nil
}

func (r *inMemoryPaymentRepository) MarkEntitlementApplied(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	payment.EntitlementApplied = true
	if payment.EntitlementAppliedAt == nil {
		ts := at
		payment.EntitlementAppliedAt = &ts
	}
	return nil
}

func (r *inMemoryPaymentRepository) ListPendingEntitlements(_ context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	pending := []domain.Payment{}
	for _, p := range r.byID {
		if p.Status == domain.PaymentStatusCompleted && !p.EntitlementApplied && !p.CreatedAt.After(createdBefore) {
			pending = append(pending, *copyPayment(p))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *inMemoryPaymentRepository) List(_ context.Context, filter PaymentFilter) ([]domain.Payment, int, error) {
	matched := r.matching(filter)
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	total := len(matched)
	if offset >= total {
		return []domain.Payment{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *inMemoryPaymentRepository) Summarize(_ context.Context, filter PaymentFilter) (PaymentSummary, error) {
	summary := PaymentSummary{ByType: map[domain.PaymentType]int64{}}
	for _, p := range r.matching(filter) {
		if p.Status != domain.PaymentStatusCompleted {
			continue
		}
		summary.Count++
		summary.TotalAmount += p.Amount
		summary.ByType[p.Type] += p.Amount
	}
	return summary, nil
}

func (r *inMemoryPaymentRepository) matching(filter PaymentFilter) []domain.Payment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Payment{}
	for _, p := range r.byID {
		if filter.UserEmail != nil && p.UserEmail != *filter.UserEmail {
			continue
		}
		if filter.Type != nil && p.Type != *filter.Type {
			continue
		}
		out = append(out, *copyPayment(p))
	}
	return out
}

func copyPayment(p *domain.Payment) *domain.Payment {
	out := *p
	if p.EntitlementAppliedAt != nil {
		ts := *p.EntitlementAppliedAt
		out.EntitlementAppliedAt = &ts
	}
	return &out
}
