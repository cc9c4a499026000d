package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsPatternEscapesWildcards(t *testing.T) {
	tests := []struct {
		name string
		term string
		want string
	}{
		{name: "plain term is lowercased and trimmed", term: "  Pothole ", want: "%pothole%"},
		{name: "percent is literal", term: "50%", want: `%50\%%`},
		{name: "underscore is literal", term: "a_b", want: `%a\_b%`},
		{name: "backslash is escaped first", term: `c:\x%`, want: `%c:\\x\%%`},
		{name: "empty term matches everything", term: "", want: "%%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsPattern(tt.term))
		})
	}
}

func TestInMemoryIssueSearchTreatsWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryIssueRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	percent := newTestIssue(t, "percent", "a@example.com", base)
	percent.Title = "Road 50% blocked"
	require.NoError(t, repo.Create(ctx, percent))
	plain := newTestIssue(t, "plain", "a@example.com", base.Add(time.Minute))
	plain.Title = "Road 500 blocked"
	require.NoError(t, repo.Create(ctx, plain))

	term := "50%"
	issues, total, err := repo.List(ctx, IssueFilter{SearchTerm: &term})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, issues, 1)
	assert.Equal(t, "percent", issues[0].ID)

	term = "road_5"
	_, total, err = repo.List(ctx, IssueFilter{SearchTerm: &term})
	require.NoError(t, err)
	assert.Zero(t, total)
}
