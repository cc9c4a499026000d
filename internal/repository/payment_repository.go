package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// PaymentFilter defines query params for payment listing.
type PaymentFilter struct {
	UserEmail *string
	Type      *domain.PaymentType
	Limit     int
	Offset    int
}

// PaymentSummary aggregates completed payments.
type PaymentSummary struct {
	Count       int                          `json:"count"`
	TotalAmount int64                        `json:"totalAmount"`
	ByType      map[domain.PaymentType]int64 `json:"byType"`
}

// PaymentRepository persists verified payments. TransactionID is unique.
type PaymentRepository interface {
	// Insert stores the payment unless its transaction id already exists, in
	// which case it returns false and leaves the store untouched.
	Insert(ctx context.Context, payment *domain.Payment) (bool, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	MarkEntitlementApplied(ctx context.Context, id string, at time.Time) error
	// ListPendingEntitlements returns completed payments created at or before
	// createdBefore whose entitlement was never applied, oldest first.
	ListPendingEntitlements(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]domain.Payment, int, error)
	Summarize(ctx context.Context, filter PaymentFilter) (PaymentSummary, error)
}

type paymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a Postgres-backed implementation.
func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepository{pool: pool}
}

const paymentColumns = `id, type, amount, currency, transaction_id, session_reference, user_email, user_name,
               issue_id, issue_title, status, entitlement_applied, entitlement_applied_at, created_at`

func (r *paymentRepository) Insert(ctx context.Context, payment *domain.Payment) (bool, error) {
	const query = `
        INSERT INTO payments (id, type, amount, currency, transaction_id, session_reference, user_email, user_name,
                              issue_id, issue_title, status, entitlement_applied, entitlement_applied_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (transaction_id) DO NOTHING
        RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		payment.ID,
		payment.Type,
		payment.Amount,
		payment.Currency,
		payment.TransactionID,
		payment.SessionReference,
		payment.UserEmail,
		payment.UserName,
		payment.IssueID,
		payment.IssueTitle,
		payment.Status,
		payment.EntitlementApplied,
		payment.EntitlementAppliedAt,
		payment.CreatedAt,
	).Scan(&payment.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, translateError(err)
	}
	return true, nil
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return r.fetchSingle(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id=$1`, transactionID)
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.fetchSingle(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
}

func (r *paymentRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	payment, err := scanPayment(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translateError(err)
	}
	return payment, nil
}

func (r *paymentRepository) MarkEntitlementApplied(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE payments SET entitlement_applied = TRUE, entitlement_applied_at = COALESCE(entitlement_applied_at, $2)
        WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *paymentRepository) ListPendingEntitlements(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + paymentColumns + ` FROM payments
        WHERE status=$1 AND NOT entitlement_applied AND created_at <= $2
        ORDER BY created_at LIMIT $3`
	rows, err := r.pool.Query(ctx, query, string(domain.PaymentStatusCompleted), createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (r *paymentRepository) List(ctx context.Context, filter PaymentFilter) ([]domain.Payment, int, error) {
	where, args := paymentWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		paymentColumns, where, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	payments, err := scanPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *paymentRepository) Summarize(ctx context.Context, filter PaymentFilter) (PaymentSummary, error) {
	where, args := paymentWhere(filter)
	args = append(args, string(domain.PaymentStatusCompleted))
	query := fmt.Sprintf(`SELECT type, COUNT(*), COALESCE(SUM(amount), 0) FROM payments
        WHERE %s AND status=$%d GROUP BY type`, where, len(args))

	summary := PaymentSummary{ByType: map[domain.PaymentType]int64{}}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return summary, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			paymentType string
			count       int
			amount      int64
		)
		if err := rows.Scan(&paymentType, &count, &amount); err != nil {
			return summary, err
		}
		summary.Count += count
		summary.TotalAmount += amount
		summary.ByType[domain.PaymentType(paymentType)] = amount
	}
	return summary, rows.Err()
}

func paymentWhere(filter PaymentFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.UserEmail != nil {
		args = append(args, *filter.UserEmail)
		clauses = append(clauses, fmt.Sprintf("user_email=$%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		clauses = append(clauses, fmt.Sprintf("type=$%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanPayments(rows pgx.Rows) ([]domain.Payment, error) {
	payments := []domain.Payment{}
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var payment domain.Payment
	if err := row.Scan(
		&payment.ID,
		&payment.Type,
		&payment.Amount,
		&payment.Currency,
		&payment.TransactionID,
		&payment.SessionReference,
		&payment.UserEmail,
		&payment.UserName,
		&payment.IssueID,
		&payment.IssueTitle,
		&payment.Status,
		&payment.EntitlementApplied,
		&payment.EntitlementAppliedAt,
		&payment.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &payment, nil
}
