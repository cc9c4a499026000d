package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)

	token, exp, err := tm.GenerateToken("citizen@example.com", domain.RoleCitizen)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	identity, err := tm.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "citizen@example.com", identity.Email)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer := NewTokenManager("one-secret", 5)
	verifier := NewTokenManager("another-secret", 5)

	token, _, err := issuer.GenerateToken("citizen@example.com", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := tm.GenerateToken("citizen@example.com", domain.RoleCitizen)
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	_, err := tm.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass", 4)
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hash, "s3cret-pass"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}
