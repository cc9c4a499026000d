package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// IssueSort selects list ordering.
type IssueSort int

const (
	// SortPriorityThenNewest puts High priority first, newest first within a priority.
	SortPriorityThenNewest IssueSort = iota
	SortNewest
	SortRecentlyUpdated
)

// IssueFilter captures listing parameters.
type IssueFilter struct {
	ReporterEmail *string
	AssignedStaff *string
	Statuses      []domain.IssueStatus
	Category      *domain.IssueCategory
	Priority      *domain.IssuePriority
	SearchTerm    *string
	// SearchReporter widens SearchTerm to the reporter email.
	SearchReporter bool
	Sort           IssueSort
	Limit          int
	Offset         int
}

// IssueSummary is an aggregate over the issues matching a filter.
type IssueSummary struct {
	Total        int                          `json:"total"`
	ByStatus     map[domain.IssueStatus]int   `json:"byStatus"`
	ByCategory   map[domain.IssueCategory]int `json:"byCategory"`
	HighPriority int                          `json:"highPriority"`
}

func newIssueSummary() IssueSummary {
	return IssueSummary{
		ByStatus:   map[domain.IssueStatus]int{},
		ByCategory: map[domain.IssueCategory]int{},
	}
}

// IssueRepository encapsulates issue persistence. Update and Delete are
// compare-and-set on Version; AddUpvote is an atomic conditional append.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	// Update writes the mutable fields and appends entry to the timeline when the
	// stored version equals expectedVersion. On success issue carries the new
	// version and timeline.
	Update(ctx context.Context, issue *domain.Issue, expectedVersion int64, entry domain.TimelineEntry) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
	// AddUpvote returns the new upvote count. ErrDuplicate when voter already
	// voted, ErrPreconditionFailed when voter is the reporter.
	AddUpvote(ctx context.Context, id, voterEmail string) (int, error)
	List(ctx context.Context, filter IssueFilter) ([]domain.Issue, int, error)
	Summarize(ctx context.Context, filter IssueFilter) (IssueSummary, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository returns a Postgres-backed implementation.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

const issueColumns = `id, reporter_email, title, description, category, location, image_url,
               status, priority, assigned_staff, upvotes, timeline, version, created_at, updated_at`

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	timeline, err := json.Marshal(issue.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	const query = `
        INSERT INTO issues (id, reporter_email, title, description, category, location, image_url,
                            status, priority, assigned_staff, upvotes, timeline, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::jsonb,$13,$14,$15)`
	_, err = r.pool.Exec(ctx, query,
		issue.ID,
		issue.ReporterEmail,
		issue.Title,
		issue.Description,
		issue.Category,
		issue.Location,
		issue.ImageURL,
		issue.Status,
		issue.Priority,
		issue.AssignedStaff,
		nonNilStrings(issue.Upvotes),
		string(timeline),
		issue.Version,
		issue.CreatedAt,
		issue.UpdatedAt,
	)
	return translateError(err)
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1`
	issue, err := scanIssue(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err)
	}
	return issue, nil
}

func (r *issueRepository) Update(ctx context.Context, issue *domain.Issue, expectedVersion int64, entry domain.TimelineEntry) error {
	appended, err := json.Marshal([]domain.TimelineEntry{entry})
	if err != nil {
		return fmt.Errorf("encode timeline entry: %w", err)
	}
	// priority never reverts from High regardless of what the caller sends.
	const query = `
        UPDATE issues
        SET title=$1, description=$2, category=$3, location=$4, image_url=$5, status=$6,
            priority = CASE WHEN priority = 'High' THEN 'High' ELSE $7 END,
            assigned_staff=$8, timeline = timeline || $9::jsonb,
            version = version + 1, updated_at = NOW()
        WHERE id=$10 AND version=$11
        RETURNING priority, timeline, version, updated_at`

	var rawTimeline []byte
	var priority string
	err = r.pool.QueryRow(ctx, query,
		issue.Title,
		issue.Description,
		issue.Category,
		issue.Location,
		issue.ImageURL,
		issue.Status,
		string(issue.Priority),
		issue.AssignedStaff,
		string(appended),
		issue.ID,
		expectedVersion,
	).Scan(&priority, &rawTimeline, &issue.Version, &issue.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return r.missOrConflict(ctx, issue.ID)
		}
		return translateError(err)
	}
	issue.Priority = domain.IssuePriority(priority)
	return json.Unmarshal(rawTimeline, &issue.Timeline)
}

func (r *issueRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM issues WHERE id=$1 AND version=$2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *issueRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM issues WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (r *issueRepository) AddUpvote(ctx context.Context, id, voterEmail string) (int, error) {
	const query = `
        UPDATE issues SET upvotes = array_append(upvotes, $2::text), updated_at = NOW()
        WHERE id=$1 AND reporter_email <> $2 AND NOT ($2 = ANY(upvotes))
        RETURNING cardinality(upvotes)`

	var count int
	err := r.pool.QueryRow(ctx, query, id, voterEmail).Scan(&count)
	if err == nil {
		return count, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}

	issue, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return 0, getErr
	}
	if issue.ReporterEmail == voterEmail {
		return 0, ErrPreconditionFailed
	}
	return 0, ErrDuplicate
}

func (r *issueRepository) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, int, error) {
	where, args := issueWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issues WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM issues WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		issueColumns, where, issueOrderBy(filter.Sort), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	issues := []domain.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		issues = append(issues, *issue)
	}
	return issues, total, rows.Err()
}

func (r *issueRepository) Summarize(ctx context.Context, filter IssueFilter) (IssueSummary, error) {
	where, args := issueWhere(filter)
	query := `SELECT status, category, priority, COUNT(*) FROM issues WHERE ` + where + ` GROUP BY status, category, priority`

	summary := newIssueSummary()
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return summary, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status, category, priority string
			count                      int
		)
		if err := rows.Scan(&status, &category, &priority, &count); err != nil {
			return summary, err
		}
		summary.Total += count
		summary.ByStatus[domain.IssueStatus(status)] += count
		summary.ByCategory[domain.IssueCategory(category)] += count
		if domain.IssuePriority(priority) == domain.IssuePriorityHigh {
			summary.HighPriority += count
		}
	}
	return summary, rows.Err()
}

func issueWhere(filter IssueFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ReporterEmail != nil {
		args = append(args, *filter.ReporterEmail)
		clauses = append(clauses, fmt.Sprintf("reporter_email=$%d", len(args)))
	}
	if filter.AssignedStaff != nil {
		args = append(args, *filter.AssignedStaff)
		clauses = append(clauses, fmt.Sprintf("assigned_staff=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, containsPattern(*filter.SearchTerm))
		like := fmt.Sprintf(`LIKE $%d ESCAPE '\'`, len(args))
		cond := fmt.Sprintf("LOWER(title) %s OR LOWER(description) %s OR LOWER(location) %s OR LOWER(category) %s", like, like, like, like)
		if filter.SearchReporter {
			cond += " OR LOWER(reporter_email) " + like
		}
		clauses = append(clauses, "("+cond+")")
	}
	return strings.Join(clauses, " AND "), args
}

func issueOrderBy(sort IssueSort) string {
	switch sort {
	case SortNewest:
		return "created_at DESC, id"
	case SortRecentlyUpdated:
		return "updated_at DESC, id"
	default:
		return "(priority = 'High') DESC, created_at DESC, id"
	}
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var (
		issue       domain.Issue
		rawTimeline []byte
	)
	if err := row.Scan(
		&issue.ID,
		&issue.ReporterEmail,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&issue.Location,
		&issue.ImageURL,
		&issue.Status,
		&issue.Priority,
		&issue.AssignedStaff,
		&issue.Upvotes,
		&rawTimeline,
		&issue.Version,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawTimeline, &issue.Timeline); err != nil {
		return nil, fmt.Errorf("decode timeline for issue %s: %w", issue.ID, err)
	}
	if issue.Upvotes == nil {
		issue.Upvotes = []string{}
	}
	return &issue, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
