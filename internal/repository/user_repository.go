package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// UserFilter defines query params for user listing.
type UserFilter struct {
	Role       *domain.Role
	SearchTerm *string
	Limit      int
	Offset     int
}

// ProfileUpdate is a partial profile edit; nil fields are left unchanged.
type ProfileUpdate struct {
	Name       *string
	Phone      *string
	PhotoURL   *string
	Department *string
}

// UserSummary aggregates user counts.
type UserSummary struct {
	ByRole  map[domain.Role]int `json:"byRole"`
	Premium int                 `json:"premium"`
	Blocked int                 `json:"blocked"`
}

// UserRepository defines persistence access for users. The quota counter is
// only ever changed through ReserveIssueSlot and ReleaseIssueSlot.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// ReserveIssueSlot increments the issue counter if the user is not blocked
	// and is premium or below freeLimit. ErrPreconditionFailed otherwise.
	ReserveIssueSlot(ctx context.Context, email string, freeLimit int) (*domain.User, error)
	// ReleaseIssueSlot decrements the issue counter unless it is already zero,
	// in which case it returns ErrPreconditionFailed.
	ReleaseIssueSlot(ctx context.Context, email string) (int, error)
	// GrantPremium sets the premium flag. It reports whether the flag changed.
	GrantPremium(ctx context.Context, email string) (bool, error)
	SetBlocked(ctx context.Context, email string, blocked bool) error
	UpdateProfile(ctx context.Context, email string, update ProfileUpdate) (*domain.User, error)
	Delete(ctx context.Context, email string, role domain.Role) error
	List(ctx context.Context, filter UserFilter) ([]domain.User, int, error)
	Summarize(ctx context.Context) (UserSummary, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `email, name, photo_url, role, is_blocked, is_premium, issues_reported_count,
               phone, department, password_hash, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (email, name, photo_url, role, is_blocked, is_premium, phone, department, password_hash)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING issues_reported_count, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Email,
		user.Name,
		user.PhotoURL,
		user.Role,
		user.IsBlocked,
		user.IsPremium,
		user.Phone,
		user.Department,
		user.PasswordHash,
	).Scan(&user.IssuesReportedCount, &user.CreatedAt, &user.UpdatedAt)
	return translateError(err)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

func (r *userRepository) ReserveIssueSlot(ctx context.Context, email string, freeLimit int) (*domain.User, error) {
	query := `
        UPDATE users SET issues_reported_count = issues_reported_count + 1, updated_at = NOW()
        WHERE email=$1 AND NOT is_blocked AND (is_premium OR issues_reported_count < $2)
        RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, email, freeLimit))
	if err == nil {
		return user, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}
	return nil, r.missOrPrecondition(ctx, email)
}

func (r *userRepository) ReleaseIssueSlot(ctx context.Context, email string) (int, error) {
	const query = `
        UPDATE users SET issues_reported_count = issues_reported_count - 1, updated_at = NOW()
        WHERE email=$1 AND issues_reported_count > 0
        RETURNING issues_reported_count`

	var count int
	err := r.pool.QueryRow(ctx, query, email).Scan(&count)
	if err == nil {
		return count, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}
	return 0, r.missOrPrecondition(ctx, email)
}

func (r *userRepository) GrantPremium(ctx context.Context, email string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET is_premium = TRUE, updated_at = NOW() WHERE email=$1 AND NOT is_premium`, email)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.missOrPrecondition(ctx, email); err == ErrNotFound {
		return false, err
	}
	return false, nil
}

func (r *userRepository) SetBlocked(ctx context.Context, email string, blocked bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET is_blocked=$2, updated_at = NOW() WHERE email=$1`, email, blocked)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, email string, update ProfileUpdate) (*domain.User, error) {
	query := `
        UPDATE users SET name = COALESCE($2, name), phone = COALESCE($3, phone),
            photo_url = COALESCE($4, photo_url), department = COALESCE($5, department), updated_at = NOW()
        WHERE email=$1
        RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, email, update.Name, update.Phone, update.PhotoURL, update.Department))
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

func (r *userRepository) Delete(ctx context.Context, email string, role domain.Role) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE email=$1 AND role=$2`, email, role)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, int, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, containsPattern(*filter.SearchTerm))
		like := fmt.Sprintf(`LIKE $%d ESCAPE '\'`, len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(name) %s OR LOWER(email) %s)", like, like))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC, email LIMIT %d OFFSET %d`,
		userColumns, where, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

func (r *userRepository) Summarize(ctx context.Context) (UserSummary, error) {
	const query = `
        SELECT role, COUNT(*), COUNT(*) FILTER (WHERE is_premium), COUNT(*) FILTER (WHERE is_blocked)
        FROM users GROUP BY role`

	summary := UserSummary{ByRole: map[domain.Role]int{}}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return summary, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			role                    string
			count, premium, blocked int
		)
		if err := rows.Scan(&role, &count, &premium, &blocked); err != nil {
			return summary, err
		}
		summary.ByRole[domain.Role(role)] = count
		summary.Premium += premium
		summary.Blocked += blocked
	}
	return summary, rows.Err()
}

func (r *userRepository) missOrPrecondition(ctx context.Context, email string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, email).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrPreconditionFailed
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.Email,
		&user.Name,
		&user.PhotoURL,
		&user.Role,
		&user.IsBlocked,
		&user.IsPremium,
		&user.IssuesReportedCount,
		&user.Phone,
		&user.Department,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
