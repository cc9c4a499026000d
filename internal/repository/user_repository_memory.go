package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

type inMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewInMemoryUserRepository returns a process-local user store.
func NewInMemoryUserRepository() UserRepository {
	return &inMemoryUserRepository{users: make(map[string]*domain.User)}
}

func (r *inMemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Email]; exists {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	user.IssuesReportedCount = 0
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	r.users[user.Email] = &stored
	return nil
}

func (r *inMemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}

func (r *inMemoryUserRepository) ReserveIssueSlot(_ context.Context, email string, freeLimit int) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	if user.IsBlocked || (!user.IsPremium && user.IssuesReportedCount >= freeLimit) {
		return nil, ErrPreconditionFailed
	}
	user.IssuesReportedCount++
	user.UpdatedAt = time.Now().UTC()
	out := *user
	return &out, nil
}

func (r *inMemoryUserRepository) ReleaseIssueSlot(_ context.Context, email string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok {
		return 0, ErrNotFound
	}
	if user.IssuesReportedCount == 0 {
		return 0, ErrPreconditionFailed
	}
	user.IssuesReportedCount--
	user.UpdatedAt = time.Now().UTC()
	return user.IssuesReportedCount, nil
}

func (r *inMemoryUserRepository) GrantPremium(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok {
		return false, ErrNotFound
	}
	if user.IsPremium {
		return false, nil
	}
	user.IsPremium = true
	user.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *inMemoryUserRepository) SetBlocked(_ context.Context, email string, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok {
		return ErrNotFound
	}
	user.IsBlocked = blocked
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryUserRepository) UpdateProfile(_ context.Context, email string, update ProfileUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Phone != nil {
		user.Phone = *update.Phone
	}
	if update.PhotoURL != nil {
		user.PhotoURL = *update.PhotoURL
	}
	if update.Department != nil {
		user.Department = *update.Department
	}
	user.UpdatedAt = time.Now().UTC()
	out := *user
	return &out, nil
}

func (r *inMemoryUserRepository) Delete(_ context.Context, email string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok || user.Role != role {
		return ErrNotFound
	}
	delete(r.users, email)
	return nil
}

func (r *inMemoryUserRepository) List(_ context.Context, filter UserFilter) ([]domain.User, int, error) {
	r.mu.RLock()
	matched := []domain.User{}
	term := ""
	if filter.SearchTerm != nil {
		term = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}
	for _, user := range r.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(user.Name), term) && !strings.Contains(strings.ToLower(user.Email), term) {
			continue
		}
		matched = append(matched, *user)
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Email < matched[j].Email
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	total := len(matched)
	if offset >= total {
		return []domain.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *inMemoryUserRepository) Summarize(_ context.Context) (UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summary := UserSummary{ByRole: map[domain.Role]int{}}
	for _, user := range r.users {
		summary.ByRole[user.Role]++
		if user.IsPremium {
			summary.Premium++
		}
		if user.IsBlocked {
			summary.Blocked++
		}
	}
	return summary, nil
}
