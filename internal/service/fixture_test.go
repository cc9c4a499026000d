package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/paymentgateway"
	"github.com/spec-kit/issue-service/internal/repository"
)

const (
	citizenEmail = "citizen@example.com"
	otherEmail   = "neighbour@example.com"
	staffEmail   = "sam@city.gov"
	adminEmail   = "admin@city.gov"
)

var testPaymentConfig = config.PaymentConfig{
	Currency:           "bdt",
	BoostAmount:        100,
	SubscriptionAmount: 1000,
	SuccessURL:         "http://app.local/payment-success?session_id={CHECKOUT_SESSION_ID}",
	CancelURL:          "http://app.local/payment-cancelled",
	TimeoutSeconds:     1,
}

// flakyUsers fails GrantPremium while failGrant is set.
type flakyUsers struct {
	repository.UserRepository
	failGrant atomic.Bool
}

func (f *flakyUsers) GrantPremium(ctx context.Context, email string) (bool, error) {
	if f.failGrant.Load() {
		return false, errors.New("connection reset by peer")
	}
	return f.UserRepository.GrantPremium(ctx, email)
}

// flakyIssues fails Create or Update on demand.
type flakyIssues struct {
	repository.IssueRepository
	failCreate   atomic.Bool
	conflictNext atomic.Bool
}

func (f *flakyIssues) Create(ctx context.Context, issue *domain.Issue) error {
	if f.failCreate.Load() {
		return errors.New("disk full")
	}
	return f.IssueRepository.Create(ctx, issue)
}

func (f *flakyIssues) Update(ctx context.Context, issue *domain.Issue, expectedVersion int64, entry domain.TimelineEntry) error {
	if f.conflictNext.CompareAndSwap(true, false) {
		return repository.ErrVersionConflict
	}
	return f.IssueRepository.Update(ctx, issue, expectedVersion, entry)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckout(ctx context.Context, req paymentgateway.CheckoutRequest) (*paymentgateway.Checkout, error) {
	args := m.Called(ctx, req)
	checkout, _ := args.Get(0).(*paymentgateway.Checkout)
	return checkout, args.Error(1)
}

func (m *mockGateway) RetrieveSession(ctx context.Context, reference string) (*paymentgateway.Session, error) {
	args := m.Called(ctx, reference)
	session, _ := args.Get(0).(*paymentgateway.Session)
	return session, args.Error(1)
}

type fixture struct {
	users      *flakyUsers
	issueRepo  *flakyIssues
	payRepo    repository.PaymentRepository
	dispatcher events.Dispatcher
	logs       *observer.ObservedLogs

	gate     *AccessGate
	ledger   *LedgerService
	issues   *IssueService
	payments *PaymentService
	auth     *AuthService
	staff    *StaffService
	stats    *StatsService
	sandbox  *paymentgateway.Sandbox
}

// newFixture wires every service over in-memory stores. A nil gateway selects the sandbox.
func newFixture(t *testing.T, gateway paymentgateway.Gateway) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	f := &fixture{
		users:      &flakyUsers{UserRepository: repository.NewInMemoryUserRepository()},
		issueRepo:  &flakyIssues{IssueRepository: repository.NewInMemoryIssueRepository()},
		payRepo:    repository.NewInMemoryPaymentRepository(),
		dispatcher: events.NewInMemoryDispatcher(),
		logs:       logs,
		sandbox:    paymentgateway.NewSandbox("http://api.local"),
	}
	if gateway == nil {
		gateway = f.sandbox
	}

	f.gate = NewAccessGate(f.users)
	f.ledger = NewLedgerService(f.users, DefaultFreeIssueLimit, logger, nil)
	f.issues = NewIssueService(IssueDependencies{
		IssueRepo:  f.issueRepo,
		UserRepo:   f.users,
		Gate:       f.gate,
		Ledger:     f.ledger,
		Dispatcher: f.dispatcher,
		Logger:     logger,
	})
	f.payments = NewPaymentService(PaymentDependencies{
		PaymentRepo:  f.payRepo,
		IssueRepo:    f.issueRepo,
		IssueService: f.issues,
		Gate:         f.gate,
		Ledger:       f.ledger,
		Gateway:      gateway,
		Config:       testPaymentConfig,
		Dispatcher:   f.dispatcher,
		Logger:       logger,
	})
	f.auth = NewAuthService(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4},
		AuthDependencies{UserRepo: f.users, Gate: f.gate, Dispatcher: f.dispatcher, Logger: logger})
	f.staff = NewStaffService(f.users, f.gate, 4, f.dispatcher, logger)
	f.stats = NewStatsService(StatsDependencies{
		IssueRepo:   f.issueRepo,
		UserRepo:    f.users,
		PaymentRepo: f.payRepo,
		Gate:        f.gate,
		Ledger:      f.ledger,
		TTL:         time.Minute,
		Logger:      logger,
	})

	f.addUser(t, citizenEmail, domain.RoleCitizen, "Rina")
	f.addUser(t, otherEmail, domain.RoleCitizen, "Omar")
	f.addUser(t, staffEmail, domain.RoleStaff, "Sam")
	f.addUser(t, adminEmail, domain.RoleAdmin, "Ada")
	return f
}

func (f *fixture) addUser(t *testing.T, email string, role domain.Role, name string) *domain.User {
	t.Helper()
	user := &domain.User{Email: email, Name: name, Role: role}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *fixture) user(t *testing.T, email string) *domain.User {
	t.Helper()
	user, err := f.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return user
}

func (f *fixture) createIssue(t *testing.T, reporter string) *domain.Issue {
	t.Helper()
	issue, err := f.issues.Create(context.Background(), reporter, validDraft())
	require.NoError(t, err)
	return issue
}

// completedCheckout runs CreateIntent against the sandbox and marks the session paid.
func (f *fixture) completedCheckout(t *testing.T, email string, in IntentInput) string {
	t.Helper()
	intent, err := f.payments.CreateIntent(context.Background(), email, in)
	require.NoError(t, err)
	_, err = f.sandbox.Complete(intent.Reference)
	require.NoError(t, err)
	return intent.Reference
}

func validDraft() domain.IssueDraft {
	return domain.IssueDraft{
		Title:       "Broken streetlight on Lake Road",
		Description: "The lamp outside house 12 has been dark for a week.",
		Category:    string(domain.CategoryStreetlight),
		Location:    "Lake Road 12",
	}
}
