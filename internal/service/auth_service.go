package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// AuthService coordinates registration and login against local accounts.
type AuthService struct {
	users      repository.UserRepository
	gate       *AccessGate
	tokenMgr   *auth.TokenManager
	bcryptCost int
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Gate       *AccessGate
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		gate:       deps.Gate,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// RegisterInput is a citizen sign-up.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	PhotoURL string
}

// Register creates a citizen account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, string, time.Time, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		return nil, "", time.Time{}, apperrors.NewValidationError("email is required", map[string]any{"field": "email"})
	}
	hash, err := hashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	user := &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PhotoURL:     strings.TrimSpace(in.PhotoURL),
		Role:         domain.RoleCitizen,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", time.Time{}, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.Email, user.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return user, token, exp, nil
}

// Login authenticates any account type.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthenticated("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthenticated("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.Email, user.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return user, token, exp, nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	admin := &domain.User{Email: email, Name: "Administrator", Role: domain.RoleAdmin, PasswordHash: hash}
	if err := s.users.Create(ctx, admin); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	s.logger.Info("bootstrap admin ensured", zap.String("email", email))
	return nil
}

// Profile returns the caller's own account.
func (s *AuthService) Profile(ctx context.Context, email string) (*domain.User, error) {
	return s.gate.Authorize(ctx, email, OpReadProfile, nil)
}

// UpdateProfile edits the caller's display fields.
func (s *AuthService) UpdateProfile(ctx context.Context, email string, update repository.ProfileUpdate) (*domain.User, error) {
	user, err := s.gate.Authorize(ctx, email, OpUpdateProfile, nil)
	if err != nil {
		return nil, err
	}
	// citizens do not belong to a department.
	if user.Role == domain.RoleCitizen {
		update.Department = nil
	}
	updated, err := s.users.UpdateProfile(ctx, user.Email, update)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:    events.EventUserChanged,
		Actor:   user.Actor(),
		Payload: events.UserChangedPayload{Email: user.Email, Change: "profile"},
	})
	return updated, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return "", apperrors.NewValidationError("password too short", map[string]any{
				"field":     "password",
				"minLength": auth.MinPasswordLength,
			})
		}
		return "", apperrors.NewInternalError(err)
	}
	return hash, nil
}
