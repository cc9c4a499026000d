package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalRateLimiterEvictsIdleBuckets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newPrincipalRateLimiter(1, 1)
	limiter.now = func() time.Time { return clock }

	require.True(t, limiter.allow("rina@example.com"))
	require.False(t, limiter.allow("rina@example.com"))
	require.True(t, limiter.allow("10.0.0.7"))
	assert.Equal(t, 2, limiter.size())

	clock = clock.Add(limiter.idleTTL)
	require.True(t, limiter.allow("omar@example.com"))
	assert.Equal(t, 1, limiter.size())

	// An evicted caller starts over with a full bucket, which it would have had anyway.
	assert.True(t, limiter.allow("rina@example.com"))
	assert.Equal(t, 2, limiter.size())
}

func TestPrincipalRateLimiterKeepsActiveBuckets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newPrincipalRateLimiter(60, 1)
	limiter.now = func() time.Time { return clock }

	require.True(t, limiter.allow("rina@example.com"))
	clock = clock.Add(limiter.idleTTL / 2)
	limiter.allow("rina@example.com")
	clock = clock.Add(limiter.idleTTL / 2)
	limiter.allow("omar@example.com")

	assert.Equal(t, 2, limiter.size())
}
