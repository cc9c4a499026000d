package service

import (
	"context"
	"errors"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// Operation names a gated action.
type Operation string

const (
	OpCreateIssue         Operation = "create-issue"
	OpEditOwnIssue        Operation = "edit-own-issue"
	OpDeleteOwnIssue      Operation = "delete-own-issue"
	OpUpvote              Operation = "upvote"
	OpReadOwnIssues       Operation = "read-own-issues"
	OpCreatePaymentIntent Operation = "create-payment-intent"
	OpVerifyPayment       Operation = "verify-payment"
	OpReadOwnPayments     Operation = "read-own-payments"
	OpReadInvoice         Operation = "read-invoice"
	OpReadOwnStats        Operation = "read-own-stats"
	OpReadProfile         Operation = "read-profile"
	OpUpdateProfile       Operation = "update-profile"

	OpReadAssignedIssues Operation = "read-assigned-issues"
	OpTransitionStatus   Operation = "transition-status"

	OpReadAll         Operation = "read-all"
	OpAssign          Operation = "assign"
	OpReject          Operation = "reject"
	OpManageStaff     Operation = "manage-staff"
	OpManageBlocking  Operation = "manage-blocking"
	OpReadAllPayments Operation = "read-all-payments"
	OpAdminStats      Operation = "admin-stats"
)

type capability struct {
	roles    []domain.Role
	mutating bool
}

var capabilities = map[Operation]capability{
	OpCreateIssue:         {roles: []domain.Role{domain.RoleCitizen}, mutating: true},
	OpEditOwnIssue:        {roles: []domain.Role{domain.RoleCitizen}, mutating: true},
	OpDeleteOwnIssue:      {roles: []domain.Role{domain.RoleCitizen}, mutating: true},
	OpUpvote:              {roles: []domain.Role{domain.RoleCitizen}, mutating: true},
	OpReadOwnIssues:       {roles: []domain.Role{domain.RoleCitizen}},
	OpCreatePaymentIntent: {roles: []domain.Role{domain.RoleCitizen}, mutating: true},
	// a blocked citizen who already paid still gets the payment recorded.
	OpVerifyPayment:   {roles: []domain.Role{domain.RoleCitizen}},
	OpReadOwnPayments: {roles: []domain.Role{domain.RoleCitizen}},
	OpReadInvoice:     {roles: []domain.Role{domain.RoleCitizen, domain.RoleAdmin}},
	OpReadOwnStats:    {roles: []domain.Role{domain.RoleCitizen, domain.RoleStaff}},
	OpReadProfile:     {roles: []domain.Role{domain.RoleCitizen, domain.RoleStaff, domain.RoleAdmin}},
	OpUpdateProfile:   {roles: []domain.Role{domain.RoleCitizen, domain.RoleStaff, domain.RoleAdmin}, mutating: true},

	OpReadAssignedIssues: {roles: []domain.Role{domain.RoleStaff}},
	OpTransitionStatus:   {roles: []domain.Role{domain.RoleStaff}, mutating: true},

	OpReadAll:         {roles: []domain.Role{domain.RoleAdmin}},
	OpAssign:          {roles: []domain.Role{domain.RoleAdmin}, mutating: true},
	OpReject:          {roles: []domain.Role{domain.RoleAdmin}, mutating: true},
	OpManageStaff:     {roles: []domain.Role{domain.RoleAdmin}, mutating: true},
	OpManageBlocking:  {roles: []domain.Role{domain.RoleAdmin}, mutating: true},
	OpReadAllPayments: {roles: []domain.Role{domain.RoleAdmin}},
	OpAdminStats:      {roles: []domain.Role{domain.RoleAdmin}},
}

// Resource carries the ownership facts an operation is checked against.
type Resource struct {
	OwnerEmail    string
	AssignedStaff *string
	SubjectEmail  string
}

// AccessGate decides whether a principal may perform an operation. It reads
// the user from the store on every call, so role and blocked changes apply to
// tokens that were issued earlier.
type AccessGate struct {
	users repository.UserRepository
}

// NewAccessGate constructs the gate.
func NewAccessGate(users repository.UserRepository) *AccessGate {
	return &AccessGate{users: users}
}

// Authorize returns the caller's current user record when op is allowed on res.
func (g *AccessGate) Authorize(ctx context.Context, principalEmail string, op Operation, res *Resource) (*domain.User, error) {
	email := domain.NormalizeEmail(principalEmail)
	if email == "" {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	user, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthenticated("unknown user")
		}
		return nil, apperrors.NewInternalError(err)
	}

	capability, ok := capabilities[op]
	if !ok {
		return nil, apperrors.NewForbidden("operation not permitted")
	}
	if capability.mutating && user.IsBlocked {
		return nil, apperrors.NewBlocked()
	}
	if !hasRole(capability.roles, user.Role) {
		return nil, apperrors.NewForbidden(string(user.Role) + " role may not " + string(op))
	}
	if err := checkOwnership(user, op, res); err != nil {
		return nil, err
	}
	return user, nil
}

func hasRole(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func checkOwnership(user *domain.User, op Operation, res *Resource) error {
	switch op {
	case OpEditOwnIssue, OpDeleteOwnIssue:
		if res == nil || res.OwnerEmail != user.Email {
			return apperrors.NewForbidden("only the reporter can change this issue")
		}
	case OpReadInvoice:
		if user.Role == domain.RoleAdmin {
			return nil
		}
		if res == nil || res.OwnerEmail != user.Email {
			return apperrors.NewForbidden("payment belongs to another user")
		}
	case OpReadOwnPayments:
		if res != nil && res.SubjectEmail != "" && res.SubjectEmail != user.Email {
			return apperrors.NewForbidden("payments belong to another user")
		}
	case OpTransitionStatus:
		if res == nil || res.AssignedStaff == nil || *res.AssignedStaff != user.Email {
			return apperrors.NewForbidden("issue is not assigned to you")
		}
	}
	return nil
}
