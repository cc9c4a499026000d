package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

type inMemoryIssueRepository struct {
	mu     sync.RWMutex
	issues map[string]*domain.Issue
}

// NewInMemoryIssueRepository returns a process-local store with the same
// atomicity guarantees as the Postgres implementation.
func NewInMemoryIssueRepository() IssueRepository {
	return &inMemoryIssueRepository{issues: make(map[string]*domain.Issue)}
}

func (r *inMemoryIssueRepository) Create(_ context.Context, issue *domain.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.issues[issue.ID]; exists {
		return ErrDuplicate
	}
	r.issues[issue.ID] = issue.Clone()
	return nil
}

func (r *inMemoryIssueRepository) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	issue, ok := r.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return issue.Clone(), nil
}

func (r *inMemoryIssueRepository) Update(_ context.Context, issue *domain.Issue, expectedVersion int64, entry domain.TimelineEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[issue.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}

	next := stored.Clone()
	next.Title = issue.Title
	next.Description = issue.Description
	next.Category = issue.Category
	next.Location = issue.Location
	next.ImageURL = issue.ImageURL
	next.Status = issue.Status
	if stored.Priority != domain.IssuePriorityHigh {
		next.Priority = issue.Priority
	}
	if issue.AssignedStaff != nil {
		staff := *issue.AssignedStaff
		next.AssignedStaff = &staff
	} else {
		next.AssignedStaff = nil
	}
	next.Timeline = stored.Timeline.Append(entry)
	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now().UTC()
	r.issues[issue.ID] = next

	issue.Priority = next.Priority
	issue.Timeline = append(domain.Timeline{}, next.Timeline...)
	issue.Upvotes = append([]string{}, next.Upvotes...)
	issue.Version = next.Version
	issue.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *inMemoryIssueRepository) Delete(_ context.Context, id string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	delete(r.issues, id)
	return nil
}

func (r *inMemoryIssueRepository) AddUpvote(_ context.Context, id, voterEmail string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[id]
	if !ok {
		return 0, ErrNotFound
	}
	if stored.ReporterEmail == voterEmail {
		return 0, ErrPreconditionFailed
	}
	if stored.HasUpvoteFrom(voterEmail) {
		return 0, ErrDuplicate
	}
	stored.Upvotes = append(stored.Upvotes, voterEmail)
	stored.UpdatedAt = time.Now().UTC()
	return len(stored.Upvotes), nil
}

func (r *inMemoryIssueRepository) List(_ context.Context, filter IssueFilter) ([]domain.Issue, int, error) {
	matched := r.matching(filter)
	sortIssues(matched, filter.Sort)

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	total := len(matched)
	if offset >= total {
		return []domain.Issue{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *inMemoryIssueRepository) Summarize(_ context.Context, filter IssueFilter) (IssueSummary, error) {
	summary := newIssueSummary()
	for _, issue := range r.matching(filter) {
		summary.Total++
		summary.ByStatus[issue.Status]++
		summary.ByCategory[issue.Category]++
		if issue.Priority == domain.IssuePriorityHigh {
			summary.HighPriority++
		}
	}
	return summary, nil
}

func (r *inMemoryIssueRepository) matching(filter IssueFilter) []domain.Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Issue{}
	for _, issue := range r.issues {
		if issueMatches(filter, issue) {
			out = append(out, *issue.Clone())
		}
	}
	return out
}

func issueMatches(filter IssueFilter, issue *domain.Issue) bool {
	if filter.ReporterEmail != nil && issue.ReporterEmail != *filter.ReporterEmail {
		return false
	}
	if filter.AssignedStaff != nil && (issue.AssignedStaff == nil || *issue.AssignedStaff != *filter.AssignedStaff) {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, s := range filter.Statuses {
			if issue.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Category != nil && issue.Category != *filter.Category {
		return false
	}
	if filter.Priority != nil && issue.Priority != *filter.Priority {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term == "" {
			return true
		}
		fields := []string{issue.Title, issue.Description, issue.Location, string(issue.Category)}
		if filter.SearchReporter {
			fields = append(fields, issue.ReporterEmail)
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), term) {
				return true
			}
		}
		return false
	}
	return true
}

func sortIssues(issues []domain.Issue, order IssueSort) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		switch order {
		case SortNewest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case SortRecentlyUpdated:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		default:
			aHigh, bHigh := a.Priority == domain.IssuePriorityHigh, b.Priority == domain.IssuePriorityHigh
			if aHigh != bHigh {
				return aHigh
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
}
