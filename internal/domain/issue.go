package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength bounds issue titles (in characters).
const MaxTitleLength = 60

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "Pending"
	IssueStatusInProgress IssueStatus = "In-Progress"
	IssueStatusWorking    IssueStatus = "Working"
	IssueStatusResolved   IssueStatus = "Resolved"
	IssueStatusClosed     IssueStatus = "Closed"
	IssueStatusRejected   IssueStatus = "Rejected"
)

var issueStatuses = []IssueStatus{
	IssueStatusPending,
	IssueStatusInProgress,
	IssueStatusWorking,
	IssueStatusResolved,
	IssueStatusClosed,
	IssueStatusRejected,
}

// IssueStatuses lists every status in lifecycle order.
func IssueStatuses() []IssueStatus {
	return append([]IssueStatus(nil), issueStatuses...)
}

// ParseIssueStatus validates a raw status value.
func ParseIssueStatus(raw string) (IssueStatus, error) {
	for _, s := range issueStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", &FieldError{Field: "status", Reason: fmt.Sprintf("unknown status %q", raw)}
}

// IsTerminal reports whether no further status change is possible.
func (s IssueStatus) IsTerminal() bool {
	return s == IssueStatusRejected || s == IssueStatusClosed
}

// IssuePriority enumerates issue urgency. Priority only ever moves Normal to High.
type IssuePriority string

const (
	IssuePriorityNormal IssuePriority = "Normal"
	IssuePriorityHigh   IssuePriority = "High"
)

// ParseIssuePriority validates a raw priority value.
func ParseIssuePriority(raw string) (IssuePriority, error) {
	switch IssuePriority(raw) {
	case IssuePriorityNormal, IssuePriorityHigh:
		return IssuePriority(raw), nil
	}
	return "", &FieldError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", raw)}
}

// IssueCategory enumerates the kinds of infrastructure problems citizens report.
type IssueCategory string

const (
	CategoryPothole             IssueCategory = "Pothole"
	CategoryStreetlight         IssueCategory = "Streetlight"
	CategoryWaterLeakage        IssueCategory = "Water Leakage"
	CategoryGarbageOverflow     IssueCategory = "Garbage Overflow"
	CategoryDamagedFootpath     IssueCategory = "Damaged Footpath"
	CategoryOtherInfrastructure IssueCategory = "Other Infrastructure"
)

var issueCategories = []IssueCategory{
	CategoryPothole,
	CategoryStreetlight,
	CategoryWaterLeakage,
	CategoryGarbageOverflow,
	CategoryDamagedFootpath,
	CategoryOtherInfrastructure,
}

// ParseIssueCategory validates a raw category value.
func ParseIssueCategory(raw string) (IssueCategory, error) {
	for _, c := range issueCategories {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", &FieldError{Field: "category", Reason: fmt.Sprintf("unknown category %q", raw)}
}

// Issue is the aggregate for a reported infrastructure problem.
type Issue struct {
	ID            string
	ReporterEmail string
	Title         string
	Description   string
	Category      IssueCategory
	Location      string
	ImageURL      string
	Status        IssueStatus
	Priority      IssuePriority
	AssignedStaff *string
	Upvotes       []string
	Timeline      Timeline
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IssueDraft carries the citizen-editable fields of an issue.
type IssueDraft struct {
	Title       string
	Description string
	Category    string
	Location    string
	ImageURL    string
}

// IssuePatch is a partial edit; nil fields are left unchanged.
type IssuePatch struct {
	Title       *string
	Description *string
	Category    *string
	Location    *string
	ImageURL    *string
}

// IsEmpty reports whether the patch changes nothing.
func (p IssuePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Location == nil && p.ImageURL == nil
}

// NewIssue validates the draft and builds a Pending, Normal priority issue whose
// timeline holds the creation event.
func NewIssue(id, reporterEmail string, draft IssueDraft, now time.Time) (*Issue, error) {
	reporterEmail = strings.TrimSpace(reporterEmail)
	if reporterEmail == "" {
		return nil, &FieldError{Field: "reporterEmail", Reason: "required"}
	}
	issue := &Issue{
		ID:            id,
		ReporterEmail: reporterEmail,
		Status:        IssueStatusPending,
		Priority:      IssuePriorityNormal,
		Upvotes:       []string{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	patch := IssuePatch{
		Title:       &draft.Title,
		Description: &draft.Description,
		Category:    &draft.Category,
		Location:    &draft.Location,
		ImageURL:    &draft.ImageURL,
	}
	if err := issue.ApplyPatch(patch); err != nil {
		return nil, err
	}
	issue.Timeline = Timeline{}.Append(StatusEntry(IssueStatusPending, "Issue reported by citizen.",
		Actor{Email: reporterEmail, Role: ActorRoleCitizen}, now))
	return issue, nil
}

// ApplyPatch validates and applies citizen edits. On error the issue is unchanged.
func (i *Issue) ApplyPatch(p IssuePatch) error {
	next := *i
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return &FieldError{Field: "title", Reason: "required"}
		}
		if utf8.RuneCountInString(title) > MaxTitleLength {
			return &FieldError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
		}
		next.Title = title
	}
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		if desc == "" {
			return &FieldError{Field: "description", Reason: "required"}
		}
		next.Description = desc
	}
	if p.Category != nil {
		category, err := ParseIssueCategory(strings.TrimSpace(*p.Category))
		if err != nil {
			return err
		}
		next.Category = category
	}
	if p.Location != nil {
		loc := strings.TrimSpace(*p.Location)
		if loc == "" {
			return &FieldError{Field: "location", Reason: "required"}
		}
		next.Location = loc
	}
	if p.ImageURL != nil {
		next.ImageURL = strings.TrimSpace(*p.ImageURL)
	}
	*i = next
	return nil
}

// Record appends entry to the timeline, moving Status along when the entry is a status event.
func (i *Issue) Record(entry TimelineEntry) {
	i.Timeline = i.Timeline.Append(entry)
	if status, ok := entry.IssueStatus(); ok {
		i.Status = status
	}
}

// HasUpvoteFrom reports whether email already upvoted.
func (i *Issue) HasUpvoteFrom(email string) bool {
	for _, v := range i.Upvotes {
		if v == email {
			return true
		}
	}
	return false
}

// IsAssigned reports whether a staff member owns the issue.
func (i *Issue) IsAssigned() bool {
	return i.AssignedStaff != nil && *i.AssignedStaff != ""
}

// Clone returns a deep copy.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	out := *i
	if i.AssignedStaff != nil {
		staff := *i.AssignedStaff
		out.AssignedStaff = &staff
	}
	out.Upvotes = append([]string{}, i.Upvotes...)
	out.Timeline = append(Timeline{}, i.Timeline...)
	return &out
}
