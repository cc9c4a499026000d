package dto

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	Title       string `json:"title" validate:"required,max=60"`
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Location    string `json:"location" validate:"required"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,url"`
}

// Draft converts the request into a domain draft.
func (r CreateIssueRequest) Draft() domain.IssueDraft {
	return domain.IssueDraft{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		ImageURL:    r.ImageURL,
	}
}

// UpdateIssueRequest is a partial edit; absent fields stay unchanged.
type UpdateIssueRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=60"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Location    *string `json:"location"`
	ImageURL    *string `json:"imageUrl" validate:"omitempty,url"`
}

// Patch converts the request into a domain patch.
func (r UpdateIssueRequest) Patch() domain.IssuePatch {
	return domain.IssuePatch{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		ImageURL:    r.ImageURL,
	}
}

// TransitionStatusRequest payload for staff status changes.
type TransitionStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AssignIssueRequest payload.
type AssignIssueRequest struct {
	StaffEmail string `json:"staffEmail" validate:"required,email"`
}

// RejectIssueRequest payload. Reason is optional.
type RejectIssueRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// UpvoteResponse reports the new upvote count.
type UpvoteResponse struct {
	Upvotes int `json:"upvotes"`
}

// IssueResponse is the public issue representation.
type IssueResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Category      domain.IssueCategory   `json:"category"`
	Location      string                 `json:"location"`
	ImageURL      string                 `json:"imageUrl,omitempty"`
	Status        domain.IssueStatus     `json:"status"`
	Priority      domain.IssuePriority   `json:"priority"`
	ReporterEmail string                 `json:"reporterEmail"`
	AssignedStaff *string                `json:"assignedStaff"`
	Upvotes       int                    `json:"upvotes"`
	Upvoters      []string               `json:"upvoters"`
	Timeline      []domain.TimelineEntry `json:"timeline"`
	Version       int64                  `json:"version"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// NewIssueResponse maps a domain issue.
func NewIssueResponse(issue domain.Issue) IssueResponse {
	upvoters := issue.Upvotes
	if upvoters == nil {
		upvoters = []string{}
	}
	timeline := []domain.TimelineEntry(issue.Timeline)
	if timeline == nil {
		timeline = []domain.TimelineEntry{}
	}
	return IssueResponse{
		ID:            issue.ID,
		Title:         issue.Title,
		Description:   issue.Description,
		Category:      issue.Category,
		Location:      issue.Location,
		ImageURL:      issue.ImageURL,
		Status:        issue.Status,
		Priority:      issue.Priority,
		ReporterEmail: issue.ReporterEmail,
		AssignedStaff: issue.AssignedStaff,
		Upvotes:       len(upvoters),
		Upvoters:      upvoters,
		Timeline:      timeline,
		Version:       issue.Version,
		CreatedAt:     issue.CreatedAt,
		UpdatedAt:     issue.UpdatedAt,
	}
}

// NewIssueResponses maps a slice of issues.
func NewIssueResponses(issues []domain.Issue) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for _, issue := range issues {
		out = append(out, NewIssueResponse(issue))
	}
	return out
}
