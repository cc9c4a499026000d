package dto

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
)

// UserRegisterRequest payload for new citizens.
type UserRegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	PhotoURL string `json:"photoUrl" validate:"omitempty,url"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest is a partial profile edit.
type UpdateProfileRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	PhotoURL *string `json:"photoUrl" validate:"omitempty,url"`
}

// ProfileUpdate converts the request for the repository layer.
func (r UpdateProfileRequest) ProfileUpdate() repository.ProfileUpdate {
	return repository.ProfileUpdate{Name: r.Name, Phone: r.Phone, PhotoURL: r.PhotoURL}
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserResponse is the profile representation.
type UserResponse struct {
	Email               string      `json:"email"`
	Name                string      `json:"name"`
	PhotoURL            string      `json:"photoUrl,omitempty"`
	Role                domain.Role `json:"role"`
	IsBlocked           bool        `json:"isBlocked"`
	IsPremium           bool        `json:"isPremium"`
	IssuesReportedCount int         `json:"issuesReportedCount"`
	Phone               string      `json:"phone,omitempty"`
	Department          string      `json:"department,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
}

// NewUserResponse maps a domain user. The password hash never leaves here.
func NewUserResponse(u domain.User) UserResponse {
	return UserResponse{
		Email:               u.Email,
		Name:                u.Name,
		PhotoURL:            u.PhotoURL,
		Role:                u.Role,
		IsBlocked:           u.IsBlocked,
		IsPremium:           u.IsPremium,
		IssuesReportedCount: u.IssuesReportedCount,
		Phone:               u.Phone,
		Department:          u.Department,
		CreatedAt:           u.CreatedAt,
	}
}
