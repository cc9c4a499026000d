package dto

import "github.com/spec-kit/issue-service/internal/repository"

// CreateStaffRequest payload for admin staff creation.
type CreateStaffRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	Phone      string `json:"phone" validate:"max=32"`
	PhotoURL   string `json:"photoUrl" validate:"omitempty,url"`
	Department string `json:"department" validate:"max=100"`
}

// UpdateStaffRequest is a partial staff profile edit.
type UpdateStaffRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone      *string `json:"phone" validate:"omitempty,max=32"`
	PhotoURL   *string `json:"photoUrl" validate:"omitempty,url"`
	Department *string `json:"department" validate:"omitempty,max=100"`
}

// ProfileUpdate converts the request for the repository layer.
func (r UpdateStaffRequest) ProfileUpdate() repository.ProfileUpdate {
	return repository.ProfileUpdate{Name: r.Name, Phone: r.Phone, PhotoURL: r.PhotoURL, Department: r.Department}
}

// BlockUserRequest toggles the blocked flag.
type BlockUserRequest struct {
	Blocked *bool `json:"blocked"`
}
