package events

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueCreated       EventType = "issue_created"
	EventIssueUpdated       EventType = "issue_updated"
	EventIssueDeleted       EventType = "issue_deleted"
	EventIssueAssigned      EventType = "issue_assigned"
	EventIssueStatusChanged EventType = "issue_status_changed"
	EventIssueBoosted       EventType = "issue_boosted"
	EventIssueUpvoted       EventType = "issue_upvoted"
	EventPaymentCompleted   EventType = "payment_completed"
	EventUserChanged        EventType = "user_changed"
)

// AllEventTypes lists every event the service emits.
func AllEventTypes() []EventType {
	return []EventType{
		EventIssueCreated,
		EventIssueUpdated,
		EventIssueDeleted,
		EventIssueAssigned,
		EventIssueStatusChanged,
		EventIssueBoosted,
		EventIssueUpvoted,
		EventPaymentCompleted,
		EventUserChanged,
	}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	IssueID   string       `json:"issue_id,omitempty"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   any          `json:"payload,omitempty"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Title    string               `json:"title"`
	Category domain.IssueCategory `json:"category"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
	Message   string             `json:"message,omitempty"`
}

// IssueAssignedPayload payload.
type IssueAssignedPayload struct {
	StaffEmail string `json:"staff_email"`
}

// PaymentCompletedPayload payload.
type PaymentCompletedPayload struct {
	PaymentID     string             `json:"payment_id"`
	TransactionID string             `json:"transaction_id"`
	Type          domain.PaymentType `json:"type"`
	Amount        int64              `json:"amount"`
	Currency      string             `json:"currency"`
}

// UserChangedPayload payload.
type UserChangedPayload struct {
	Email  string `json:"email"`
	Change string `json:"change"`
}
