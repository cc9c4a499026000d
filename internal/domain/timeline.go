package domain

import "time"

// ActorRole identifies who produced a timeline entry.
type ActorRole string

const (
	ActorRoleAdmin   ActorRole = "Admin"
	ActorRoleStaff   ActorRole = "Staff"
	ActorRoleCitizen ActorRole = "Citizen"
)

// TimelineStatusBoosted marks priority events. It is not an IssueStatus.
const TimelineStatusBoosted = "Boosted"

// Actor is the principal behind a mutation.
type Actor struct {
	Email string    `json:"email"`
	Role  ActorRole `json:"role"`
}

// TimelineEntry is an immutable audit record on an issue.
type TimelineEntry struct {
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	ActorRole  ActorRole `json:"actorRole"`
	ActorEmail string    `json:"actorEmail"`
	Timestamp  time.Time `json:"timestamp"`
}

// IssueStatus returns the status this entry moved the issue to, if any.
func (e TimelineEntry) IssueStatus() (IssueStatus, bool) {
	if e.Status == TimelineStatusBoosted {
		return "", false
	}
	status, err := ParseIssueStatus(e.Status)
	if err != nil {
		return "", false
	}
	return status, true
}

// StatusEntry builds a status event.
func StatusEntry(status IssueStatus, message string, actor Actor, at time.Time) TimelineEntry {
	return TimelineEntry{
		Status:     string(status),
		Message:    message,
		ActorRole:  actor.Role,
		ActorEmail: actor.Email,
		Timestamp:  at.UTC(),
	}
}

// BoostEntry builds the priority event logged when an issue is boosted.
func BoostEntry(actor Actor, at time.Time) TimelineEntry {
	return TimelineEntry{
		Status:     TimelineStatusBoosted,
		Message:    "Issue priority boosted to High.",
		ActorRole:  actor.Role,
		ActorEmail: actor.Email,
		Timestamp:  at.UTC(),
	}
}

// Timeline is an append-only ordered log. Append never touches the receiver's backing array.
type Timeline []TimelineEntry

// Append returns a new timeline with entry at the end.
func (t Timeline) Append(entry TimelineEntry) Timeline {
	out := make(Timeline, len(t), len(t)+1)
	copy(out, t)
	return append(out, entry)
}

// Latest returns the most recent entry.
func (t Timeline) Latest() (TimelineEntry, bool) {
	if len(t) == 0 {
		return TimelineEntry{}, false
	}
	return t[len(t)-1], true
}

// CurrentStatus returns the status of the latest status event, skipping priority events.
func (t Timeline) CurrentStatus() (IssueStatus, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if status, ok := t[i].IssueStatus(); ok {
			return status, true
		}
	}
	return "", false
}
