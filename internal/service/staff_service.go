package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// StaffService manages staff accounts and citizen blocking on behalf of admins.
type StaffService struct {
	users      repository.UserRepository
	gate       *AccessGate
	bcryptCost int
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewStaffService constructs the service.
func NewStaffService(users repository.UserRepository, gate *AccessGate, bcryptCost int, dispatcher events.Dispatcher, logger *zap.Logger) *StaffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{users: users, gate: gate, bcryptCost: bcryptCost, dispatcher: dispatcher, logger: logger}
}

// StaffInput describes a new staff account.
type StaffInput struct {
	Name       string
	Email      string
	Password   string
	Phone      string
	PhotoURL   string
	Department string
}

// ListCitizens lists citizen accounts, searchable by name or email.
func (s *StaffService) ListCitizens(ctx context.Context, adminEmail, search string, page PageRequest) (*Page[domain.User], error) {
	if _, err := s.gate.Authorize(ctx, adminEmail, OpManageBlocking, nil); err != nil {
		return nil, err
	}
	return s.listByRole(ctx, domain.RoleCitizen, search, page)
}

// SetBlocked blocks or unblocks a citizen.
func (s *StaffService) SetBlocked(ctx context.Context, adminEmail, citizenEmail string, blocked bool) (*domain.User, error) {
	admin, err := s.gate.Authorize(ctx, adminEmail, OpManageBlocking, nil)
	if err != nil {
		return nil, err
	}
	target, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(citizenEmail))
	if err != nil {
		return nil, userError(err, citizenEmail)
	}
	if target.Role != domain.RoleCitizen {
		return nil, apperrors.NewInvalidState("only citizens can be blocked", map[string]any{"role": target.Role})
	}
	if err := s.users.SetBlocked(ctx, target.Email, blocked); err != nil {
		return nil, userError(err, target.Email)
	}
	target.IsBlocked = blocked

	change := "unblocked"
	if blocked {
		change = "blocked"
	}
	s.logger.Info("citizen block state changed", zap.String("user", target.Email), zap.String("change", change))
	s.publishUserChanged(ctx, admin, target.Email, change)
	return target, nil
}

// ListStaff lists staff accounts.
func (s *StaffService) ListStaff(ctx context.Context, adminEmail, search string, page PageRequest) (*Page[domain.User], error) {
	if _, err := s.gate.Authorize(ctx, adminEmail, OpManageStaff, nil); err != nil {
		return nil, err
	}
	return s.listByRole(ctx, domain.RoleStaff, search, page)
}

// CreateStaff adds a staff account with a login password.
func (s *StaffService) CreateStaff(ctx context.Context, adminEmail string, in StaffInput) (*domain.User, error) {
	admin, err := s.gate.Authorize(ctx, adminEmail, OpManageStaff, nil)
	if err != nil {
		return nil, err
	}
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		return nil, apperrors.NewValidationError("email is required", map[string]any{"field": "email"})
	}
	hash, err := hashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	staff := &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		PhotoURL:     strings.TrimSpace(in.PhotoURL),
		Department:   strings.TrimSpace(in.Department),
		Role:         domain.RoleStaff,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, staff); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.publishUserChanged(ctx, admin, staff.Email, "staff_created")
	return staff, nil
}

// UpdateStaff edits a staff member's profile fields.
func (s *StaffService) UpdateStaff(ctx context.Context, adminEmail, staffEmail string, update repository.ProfileUpdate) (*domain.User, error) {
	admin, err := s.gate.Authorize(ctx, adminEmail, OpManageStaff, nil)
	if err != nil {
		return nil, err
	}
	staff, err := s.requireStaff(ctx, staffEmail)
	if err != nil {
		return nil, err
	}
	updated, err := s.users.UpdateProfile(ctx, staff.Email, update)
	if err != nil {
		return nil, userError(err, staff.Email)
	}
	s.publishUserChanged(ctx, admin, staff.Email, "staff_updated")
	return updated, nil
}

// DeleteStaff removes a staff account. Issues already assigned keep the
// assignment and can no longer be transitioned by anyone.
func (s *StaffService) DeleteStaff(ctx context.Context, adminEmail, staffEmail string) error {
	admin, err := s.gate.Authorize(ctx, adminEmail, OpManageStaff, nil)
	if err != nil {
		return err
	}
	staff, err := s.requireStaff(ctx, staffEmail)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, staff.Email, domain.RoleStaff); err != nil {
		return userError(err, staff.Email)
	}
	s.publishUserChanged(ctx, admin, staff.Email, "staff_deleted")
	return nil
}

func (s *StaffService) requireStaff(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, userError(err, email)
	}
	if user.Role != domain.RoleStaff {
		return nil, apperrors.NewNotFound("staff", map[string]any{"email": email})
	}
	return user, nil
}

func (s *StaffService) listByRole(ctx context.Context, role domain.Role, search string, page PageRequest) (*Page[domain.User], error) {
	filter := repository.UserFilter{Role: &role}
	if term := strings.TrimSpace(search); term != "" {
		filter.SearchTerm = &term
	}
	filter.Limit, filter.Offset = page.limitOffset()
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return newPage(users, total, page), nil
}

func (s *StaffService) publishUserChanged(ctx context.Context, admin *domain.User, email, change string) {
	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:    events.EventUserChanged,
		Actor:   admin.Actor(),
		Payload: events.UserChangedPayload{Email: email, Change: change},
	})
}

func userError(err error, email string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("user", map[string]any{"email": email})
	}
	return apperrors.NewInternalError(err)
}
