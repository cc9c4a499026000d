package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/paymentgateway"
	"github.com/spec-kit/issue-service/internal/repository"
	"github.com/spec-kit/issue-service/internal/service"
)

const (
	testAdminEmail    = "admin@city.gov"
	testAdminPassword = "admin-secret"
)

type testServer struct {
	app *fiber.App
}

func newTestServer(t *testing.T, rateLimit config.RateLimitConfig) *testServer {
	t.Helper()
	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	users := repository.NewInMemoryUserRepository()
	issueRepo := repository.NewInMemoryIssueRepository()
	paymentRepo := repository.NewInMemoryPaymentRepository()
	dispatcher := events.NewInMemoryDispatcher()
	sandbox := paymentgateway.NewSandbox("http://api.local")

	gate := service.NewAccessGate(users)
	ledger := service.NewLedgerService(users, service.DefaultFreeIssueLimit, logger, metrics)
	issues := service.NewIssueService(service.IssueDependencies{
		IssueRepo: issueRepo, UserRepo: users, Gate: gate, Ledger: ledger,
		Dispatcher: dispatcher, Logger: logger, Metrics: metrics,
	})
	payments := service.NewPaymentService(service.PaymentDependencies{
		PaymentRepo: paymentRepo, IssueRepo: issueRepo, IssueService: issues, Gate: gate, Ledger: ledger,
		Gateway: sandbox,
		Config: config.PaymentConfig{
			Currency:           "bdt",
			BoostAmount:        100,
			SubscriptionAmount: 1000,
			SuccessURL:         "http://app.local/payment-success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:          "http://app.local/payment-cancelled",
			TimeoutSeconds:     1,
		},
		Dispatcher: dispatcher, Logger: logger, Metrics: metrics,
	})
	authService := service.NewAuthService(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4},
		service.AuthDependencies{UserRepo: users, Gate: gate, Dispatcher: dispatcher, Logger: logger})
	staffService := service.NewStaffService(users, gate, 4, dispatcher, logger)
	stats := service.NewStatsService(service.StatsDependencies{
		IssueRepo: issueRepo, UserRepo: users, PaymentRepo: paymentRepo, Gate: gate, Ledger: ledger,
		TTL: time.Minute, Logger: logger,
	})
	require.NoError(t, authService.EnsureAdmin(context.Background(), testAdminEmail, testAdminPassword))

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:   handlers.NewHealthHandler("issue-service", "test", nil),
		Users:    handlers.NewUsersHandler(authService),
		Issues:   handlers.NewIssuesHandler(issues, stats),
		Staff:    handlers.NewStaffHandler(issues, stats),
		Admin:    handlers.NewAdminHandler(handlers.AdminDependencies{Issues: issues, Staff: staffService, Payments: payments, Stats: stats}),
		Payments: handlers.NewPaymentsHandler(payments, sandbox),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
		RateLimit:      rateLimit,
		Gatherer:       registry,
		Logger:         logger,
	})
	return &testServer{app: app}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func (s *testServer) register(t *testing.T, name, email string) string {
	t.Helper()
	status, env := s.do(t, fiber.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "secret-pass",
	})
	require.Equal(t, fiber.StatusCreated, status)
	var out struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Auth.Token)
	return out.Auth.Token
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	status, env := s.do(t, fiber.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, fiber.StatusOK, status)
	var out struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.Auth.Token
}

func issueBody(title string) map[string]string {
	return map[string]string{
		"title":       title,
		"description": "Water pooling across both lanes.",
		"category":    "Pothole",
		"location":    "Station Road",
	}
}

func TestIssueReportingHonoursFreeQuota(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{IntentsPerMinute: 60, IntentBurst: 10})
	token := s.register(t, "Rina", "rina@example.com")

	for i := 0; i < 3; i++ {
		status, _ := s.do(t, fiber.MethodPost, "/issues", token, issueBody("Pothole near the station"))
		require.Equal(t, fiber.StatusCreated, status)
	}

	status, env := s.do(t, fiber.MethodPost, "/issues", token, issueBody("One more pothole"))
	assert.Equal(t, fiber.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "QUOTA_EXCEEDED", env.Error.Code)
	assert.Equal(t, true, env.Error.Details["limitReached"])

	status, env = s.do(t, fiber.MethodGet, "/issues?limit=2", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var page struct {
		Items []struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Timeline []any  `json:"timeline"`
		} `json:"items"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "Pending", page.Items[0].Status)
	assert.Len(t, page.Items[0].Timeline, 1)
}

func TestRequestValidationAndErrors(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{IntentsPerMinute: 60, IntentBurst: 10})
	token := s.register(t, "Rina", "rina@example.com")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"missing title", fiber.MethodPost, "/issues", token, map[string]string{"description": "d", "category": "Pothole", "location": "x"}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown category", fiber.MethodPost, "/issues", token, map[string]string{"title": "t", "description": "d", "category": "Volcano", "location": "x"}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"no token", fiber.MethodGet, "/users/me", "", nil, fiber.StatusUnauthorized, "UNAUTHENTICATED"},
		{"bad token", fiber.MethodGet, "/users/me", "not-a-jwt", nil, fiber.StatusUnauthorized, "UNAUTHENTICATED"},
		{"citizen on admin route", fiber.MethodGet, "/admin/stats", token, nil, fiber.StatusForbidden, "FORBIDDEN"},
		{"missing issue", fiber.MethodGet, "/issues/does-not-exist", "", nil, fiber.StatusNotFound, "NOT_FOUND"},
		{"unknown route", fiber.MethodGet, "/nowhere", "", nil, fiber.StatusNotFound, "NOT_FOUND"},
		{"bad payment type", fiber.MethodPost, "/payments/intents", token, map[string]string{"type": "donation"}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestSubscriptionCheckoutFlow(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{IntentsPerMinute: 60, IntentBurst: 10})
	token := s.register(t, "Rina", "rina@example.com")

	status, env := s.do(t, fiber.MethodPost, "/payments/intents", token, map[string]string{"type": "subscription"})
	require.Equal(t, fiber.StatusCreated, status)
	var intent struct {
		Reference   string `json:"reference"`
		RedirectURL string `json:"redirectUrl"`
		Amount      int64  `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &intent))
	assert.Equal(t, int64(1000), intent.Amount)

	status, env = s.do(t, fiber.MethodPost, "/payments/verify", token, map[string]string{"sessionId": intent.Reference})
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PAYMENT_NOT_COMPLETED", env.Error.Code)

	status, _ = s.do(t, fiber.MethodGet, "/payments/sandbox/"+intent.Reference+"/complete", "", nil)
	assert.Equal(t, fiber.StatusSeeOther, status)

	var verified struct {
		AlreadyProcessed bool `json:"alreadyProcessed"`
		Payment          struct {
			Type   string `json:"type"`
			Amount int64  `json:"amount"`
		} `json:"payment"`
	}
	status, env = s.do(t, fiber.MethodPost, "/payments/verify", token, map[string]string{"sessionId": intent.Reference})
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	assert.False(t, verified.AlreadyProcessed)
	assert.Equal(t, "subscription", verified.Payment.Type)

	status, env = s.do(t, fiber.MethodPost, "/payments/verify", token, map[string]string{"sessionId": intent.Reference})
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	assert.True(t, verified.AlreadyProcessed)

	status, env = s.do(t, fiber.MethodGet, "/users/me", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var me struct {
		IsPremium bool `json:"isPremium"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.True(t, me.IsPremium)

	status, env = s.do(t, fiber.MethodGet, "/payments/mine", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var ledger struct {
		TotalAmount int64 `json:"totalAmount"`
		Payments    struct {
			Total int `json:"total"`
		} `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ledger))
	assert.Equal(t, int64(1000), ledger.TotalAmount)
	assert.Equal(t, 1, ledger.Payments.Total)
}

func TestPaymentIntentsAreRateLimitedPerPrincipal(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{IntentsPerMinute: 1, IntentBurst: 1})
	rina := s.register(t, "Rina", "rina@example.com")
	omar := s.register(t, "Omar", "omar@example.com")

	status, _ := s.do(t, fiber.MethodPost, "/payments/intents", rina, map[string]string{"type": "subscription"})
	require.Equal(t, fiber.StatusCreated, status)

	status, env := s.do(t, fiber.MethodPost, "/payments/intents", rina, map[string]string{"type": "subscription"})
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)

	status, _ = s.do(t, fiber.MethodPost, "/payments/intents", omar, map[string]string{"type": "subscription"})
	assert.Equal(t, fiber.StatusCreated, status)
}

func TestAdminWorkflow(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{IntentsPerMinute: 60, IntentBurst: 10})
	citizen := s.register(t, "Rina", "rina@example.com")
	admin := s.login(t, testAdminEmail, testAdminPassword)

	status, env := s.do(t, fiber.MethodPost, "/issues", citizen, issueBody("Leaking hydrant"))
	require.Equal(t, fiber.StatusCreated, status)
	var issue struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &issue))

	status, _ = s.do(t, fiber.MethodPost, "/admin/staff", admin, map[string]string{
		"name": "Sam", "email": "sam@city.gov", "password": "staff-pass", "department": "Roads",
	})
	require.Equal(t, fiber.StatusCreated, status)
	staff := s.login(t, "sam@city.gov", "staff-pass")

	status, env = s.do(t, fiber.MethodPatch, "/admin/issues/"+issue.ID+"/assign", admin, map[string]string{"staffEmail": "sam@city.gov"})
	require.Equal(t, fiber.StatusOK, status)
	var assigned struct {
		Status        string  `json:"status"`
		AssignedStaff *string `json:"assignedStaff"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &assigned))
	assert.Equal(t, "In-Progress", assigned.Status)
	require.NotNil(t, assigned.AssignedStaff)
	assert.Equal(t, "sam@city.gov", *assigned.AssignedStaff)

	status, _ = s.do(t, fiber.MethodPatch, "/staff/issues/"+issue.ID+"/status", staff, map[string]string{"status": "Resolved"})
	require.Equal(t, fiber.StatusOK, status)

	status, env = s.do(t, fiber.MethodPatch, "/staff/issues/"+issue.ID+"/status", staff, map[string]string{"status": "Rejected"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	status, _ = s.do(t, fiber.MethodPatch, "/admin/users/rina@example.com/block", admin, map[string]bool{"blocked": true})
	require.Equal(t, fiber.StatusOK, status)

	status, env = s.do(t, fiber.MethodPost, "/issues", citizen, issueBody("Another report"))
	assert.Equal(t, fiber.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BLOCKED", env.Error.Code)

	status, env = s.do(t, fiber.MethodGet, "/admin/stats", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	var stats struct {
		Issues struct {
			Total int `json:"total"`
		} `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.Issues.Total)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	status, _ := s.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "issue_service_http_requests_total")
}
