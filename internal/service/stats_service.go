package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

const (
	adminStatsKey = "stats:admin"
	latestLimit   = 5
)

// ReadModelCache stores derived read models.
type ReadModelCache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// CitizenStats summarizes a citizen's own issues.
type CitizenStats struct {
	Submitted  int   `json:"submitted"`
	Pending    int   `json:"pending"`
	InProgress int   `json:"inProgress"`
	Working    int   `json:"working"`
	Resolved   int   `json:"resolved"`
	Closed     int   `json:"closed"`
	Rejected   int   `json:"rejected"`
	IsPremium  bool  `json:"isPremium"`
	Remaining  int   `json:"remaining"`
	TotalSpent int64 `json:"totalSpent"`
}

// StaffStats summarizes the issues assigned to a staff member.
type StaffStats struct {
	Assigned     int                          `json:"assigned"`
	ByStatus     map[domain.IssueStatus]int   `json:"byStatus"`
	ByCategory   map[domain.IssueCategory]int `json:"byCategory"`
	HighPriority int                          `json:"highPriority"`
}

// LatestIssue is the admin dashboard view of a recent issue.
type LatestIssue struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Status        domain.IssueStatus   `json:"status"`
	Priority      domain.IssuePriority `json:"priority"`
	ReporterEmail string               `json:"reporterEmail"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// LatestCitizen is the admin dashboard view of a recent sign-up.
type LatestCitizen struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsPremium bool      `json:"isPremium"`
	IsBlocked bool      `json:"isBlocked"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdminStats is the admin dashboard read model.
type AdminStats struct {
	Issues         repository.IssueSummary   `json:"issues"`
	Users          repository.UserSummary    `json:"users"`
	Payments       repository.PaymentSummary `json:"payments"`
	LatestIssues   []LatestIssue             `json:"latestIssues"`
	LatestCitizens []LatestCitizen           `json:"latestCitizens"`
	GeneratedAt    time.Time                 `json:"generatedAt"`
}

// StatsService derives dashboard statistics. Nothing here is part of the
// write path.
type StatsService struct {
	issues   repository.IssueRepository
	users    repository.UserRepository
	payments repository.PaymentRepository
	gate     *AccessGate
	ledger   *LedgerService
	cache    ReadModelCache
	ttl      time.Duration
	logger   *zap.Logger

	// generation counts invalidations; a read model built under an older
	// generation is not written back.
	cacheMu    sync.Mutex
	generation uint64
}

// StatsDependencies bundles collaborators for the stats service.
type StatsDependencies struct {
	IssueRepo   repository.IssueRepository
	UserRepo    repository.UserRepository
	PaymentRepo repository.PaymentRepository
	Gate        *AccessGate
	Ledger      *LedgerService
	Cache       ReadModelCache
	TTL         time.Duration
	Logger      *zap.Logger
}

// NewStatsService constructs the service. Cache may be nil.
func NewStatsService(deps StatsDependencies) *StatsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		issues:   deps.IssueRepo,
		users:    deps.UserRepo,
		payments: deps.PaymentRepo,
		gate:     deps.Gate,
		ledger:   deps.Ledger,
		cache:    deps.Cache,
		ttl:      deps.TTL,
		logger:   logger,
	}
}

// RegisterInvalidation drops cached read models whenever domain state changes.
func (s *StatsService) RegisterInvalidation(dispatcher events.Dispatcher) {
	if dispatcher == nil || s.cache == nil {
		return
	}
	for _, eventType := range events.AllEventTypes() {
		dispatcher.Subscribe(eventType, s.invalidate)
	}
}

func (s *StatsService) invalidate(ctx context.Context, _ events.Event) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	return s.cache.Invalidate(ctx, adminStatsKey)
}

func (s *StatsService) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// storeIfCurrent caches stats unless an invalidation ran since generation was read.
func (s *StatsService) storeIfCurrent(ctx context.Context, generation uint64, stats *AdminStats) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		s.logger.Debug("admin stats changed during build; not caching")
		return
	}
	if err := s.cache.Set(ctx, adminStatsKey, stats, s.ttl); err != nil {
		s.logger.Warn("stats cache write failed", zap.Error(err))
	}
}

// CitizenStats returns counters for the caller's own issues.
func (s *StatsService) CitizenStats(ctx context.Context, email string) (*CitizenStats, error) {
	user, err := s.gate.Authorize(ctx, email, OpReadOwnStats, nil)
	if err != nil {
		return nil, err
	}
	if user.Role != domain.RoleCitizen {
		return nil, apperrors.NewForbidden("citizen statistics are for citizens")
	}

	var summary repository.IssueSummary
	var spent repository.PaymentSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.issues.Summarize(gctx, repository.IssueFilter{ReporterEmail: &user.Email})
		return err
	})
	g.Go(func() error {
		var err error
		spent, err = s.payments.Summarize(gctx, repository.PaymentFilter{UserEmail: &user.Email})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	stats := &CitizenStats{
		Submitted:  summary.Total,
		Pending:    summary.ByStatus[domain.IssueStatusPending],
		InProgress: summary.ByStatus[domain.IssueStatusInProgress],
		Working:    summary.ByStatus[domain.IssueStatusWorking],
		Resolved:   summary.ByStatus[domain.IssueStatusResolved],
		Closed:     summary.ByStatus[domain.IssueStatusClosed],
		Rejected:   summary.ByStatus[domain.IssueStatusRejected],
		IsPremium:  user.IsPremium,
		TotalSpent: spent.TotalAmount,
		Remaining:  -1,
	}
	if !user.IsPremium {
		stats.Remaining = max(s.ledger.FreeLimit()-user.IssuesReportedCount, 0)
	}
	return stats, nil
}

// StaffStats returns distributions over the caller's assigned issues.
func (s *StatsService) StaffStats(ctx context.Context, email string) (*StaffStats, error) {
	user, err := s.gate.Authorize(ctx, email, OpReadOwnStats, nil)
	if err != nil {
		return nil, err
	}
	if user.Role != domain.RoleStaff {
		return nil, apperrors.NewForbidden("staff statistics are for staff")
	}
	summary, err := s.issues.Summarize(ctx, repository.IssueFilter{AssignedStaff: &user.Email})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &StaffStats{
		Assigned:     summary.Total,
		ByStatus:     summary.ByStatus,
		ByCategory:   summary.ByCategory,
		HighPriority: summary.HighPriority,
	}, nil
}

// AdminStats returns the admin dashboard, served from cache when possible.
func (s *StatsService) AdminStats(ctx context.Context, adminEmail string) (*AdminStats, error) {
	if _, err := s.gate.Authorize(ctx, adminEmail, OpAdminStats, nil); err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached AdminStats
		found, err := s.cache.Get(ctx, adminStatsKey, &cached)
		if err != nil {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		} else if found {
			return &cached, nil
		}
	}

	generation := s.cacheGeneration()
	stats, err := s.buildAdminStats(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if s.cache != nil {
		s.storeIfCurrent(ctx, generation, stats)
	}
	return stats, nil
}

func (s *StatsService) buildAdminStats(ctx context.Context) (*AdminStats, error) {
	stats := &AdminStats{GeneratedAt: time.Now().UTC()}
	citizen := domain.RoleCitizen

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.Issues, err = s.issues.Summarize(gctx, repository.IssueFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		stats.Users, err = s.users.Summarize(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Payments, err = s.payments.Summarize(gctx, repository.PaymentFilter{})
		return err
	})
	g.Go(func() error {
		issues, _, err := s.issues.List(gctx, repository.IssueFilter{Sort: repository.SortNewest, Limit: latestLimit})
		if err != nil {
			return err
		}
		stats.LatestIssues = make([]LatestIssue, 0, len(issues))
		for _, issue := range issues {
			stats.LatestIssues = append(stats.LatestIssues, LatestIssue{
				ID:            issue.ID,
				Title:         issue.Title,
				Status:        issue.Status,
				Priority:      issue.Priority,
				ReporterEmail: issue.ReporterEmail,
				CreatedAt:     issue.CreatedAt,
			})
		}
		return nil
	})
	g.Go(func() error {
		users, _, err := s.users.List(gctx, repository.UserFilter{Role: &citizen, Limit: latestLimit})
		if err != nil {
			return err
		}
		stats.LatestCitizens = make([]LatestCitizen, 0, len(users))
		for _, u := range users {
			stats.LatestCitizens = append(stats.LatestCitizens, LatestCitizen{
				Email:     u.Email,
				Name:      u.Name,
				IsPremium: u.IsPremium,
				IsBlocked: u.IsBlocked,
				CreatedAt: u.CreatedAt,
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
