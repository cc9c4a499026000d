package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleCitizen, RoleStaff, RoleAdmin:
		return Role(raw), nil
	}
	return "", &FieldError{Field: "role", Reason: fmt.Sprintf("unknown role %q", raw)}
}

// ActorRole maps the user role onto the role recorded in timelines.
func (r Role) ActorRole() ActorRole {
	switch r {
	case RoleAdmin:
		return ActorRoleAdmin
	case RoleStaff:
		return ActorRoleStaff
	default:
		return ActorRoleCitizen
	}
}

// User is keyed by email. IssuesReportedCount is maintained by the quota ledger only.
type User struct {
	Email               string
	Name                string
	PhotoURL            string
	Role                Role
	IsBlocked           bool
	IsPremium           bool
	IssuesReportedCount int
	Phone               string
	Department          string
	PasswordHash        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DisplayName prefers the name and falls back to the email.
func (u *User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Email
}

// Actor returns the timeline actor for this user.
func (u *User) Actor() Actor {
	return Actor{Email: u.Email, Role: u.Role.ActorRole()}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
