package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() IssueDraft {
	return IssueDraft{
		Title:       "Broken streetlight on Road 7",
		Description: "The light has been out for a week.",
		Category:    string(CategoryStreetlight),
		Location:    "Road 7, Block C",
	}
}

func TestNewIssueStartsPendingWithCreationEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	issue, err := NewIssue("issue-1", "citizen@example.com", validDraft(), now)
	require.NoError(t, err)

	assert.Equal(t, IssueStatusPending, issue.Status)
	assert.Equal(t, IssuePriorityNormal, issue.Priority)
	assert.Equal(t, int64(1), issue.Version)
	assert.Empty(t, issue.Upvotes)
	assert.Nil(t, issue.AssignedStaff)
	require.Len(t, issue.Timeline, 1)
	assert.Equal(t, "Issue reported by citizen.", issue.Timeline[0].Message)
	assert.Equal(t, ActorRoleCitizen, issue.Timeline[0].ActorRole)
	assert.Equal(t, "citizen@example.com", issue.Timeline[0].ActorEmail)

	status, ok := issue.Timeline.CurrentStatus()
	require.True(t, ok)
	assert.Equal(t, issue.Status, status)
}

func TestNewIssueValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *IssueDraft)
		field  string
	}{
		{name: "empty title", mutate: func(d *IssueDraft) { d.Title = "  " }, field: "title"},
		{name: "long title", mutate: func(d *IssueDraft) { d.Title = strings.Repeat("a", MaxTitleLength+1) }, field: "title"},
		{name: "unknown category", mutate: func(d *IssueDraft) { d.Category = "Graffiti" }, field: "category"},
		{name: "missing description", mutate: func(d *IssueDraft) { d.Description = "" }, field: "description"},
		{name: "missing location", mutate: func(d *IssueDraft) { d.Location = "" }, field: "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := validDraft()
			tt.mutate(&draft)

			_, err := NewIssue("id", "citizen@example.com", draft, time.Now())
			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tt.field, fieldErr.Field)
		})
	}
}

func TestTitleLimitCountsCharacters(t *testing.T) {
	draft := validDraft()
	draft.Title = strings.Repeat("গ", MaxTitleLength)

	_, err := NewIssue("id", "citizen@example.com", draft, time.Now())
	assert.NoError(t, err)
}

func TestApplyPatchLeavesIssueUntouchedOnError(t *testing.T) {
	issue, err := NewIssue("id", "citizen@example.com", validDraft(), time.Now())
	require.NoError(t, err)
	before := issue.Clone()

	title := "New title"
	badCategory := "Unknown"
	err = issue.ApplyPatch(IssuePatch{Title: &title, Category: &badCategory})

	require.Error(t, err)
	assert.Equal(t, before, issue)
}

func TestRecordKeepsStatusInSyncWithTimeline(t *testing.T) {
	now := time.Now()
	issue, err := NewIssue("id", "citizen@example.com", validDraft(), now)
	require.NoError(t, err)

	admin := Actor{Email: "admin@example.com", Role: ActorRoleAdmin}
	issue.Record(StatusEntry(IssueStatusInProgress, "Assigned to staff: Rahim", admin, now))
	issue.Record(BoostEntry(Actor{Email: "citizen@example.com", Role: ActorRoleCitizen}, now))

	assert.Equal(t, IssueStatusInProgress, issue.Status)
	status, ok := issue.Timeline.CurrentStatus()
	require.True(t, ok)
	assert.Equal(t, IssueStatusInProgress, status)
	latest, _ := issue.Timeline.Latest()
	assert.Equal(t, TimelineStatusBoosted, latest.Status)
}

func TestCloneIsDeep(t *testing.T) {
	issue, err := NewIssue("id", "citizen@example.com", validDraft(), time.Now())
	require.NoError(t, err)
	staff := "staff@example.com"
	issue.AssignedStaff = &staff
	issue.Upvotes = append(issue.Upvotes, "voter@example.com")

	clone := issue.Clone()
	*clone.AssignedStaff = "other@example.com"
	clone.Upvotes[0] = "changed@example.com"
	clone.Timeline[0].Message = "changed"

	assert.Equal(t, "staff@example.com", *issue.AssignedStaff)
	assert.Equal(t, "voter@example.com", issue.Upvotes[0])
	assert.Equal(t, "Issue reported by citizen.", issue.Timeline[0].Message)
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range IssueStatuses() {
		want := s == IssueStatusClosed || s == IssueStatusRejected
		assert.Equal(t, want, s.IsTerminal(), string(s))
	}
}
