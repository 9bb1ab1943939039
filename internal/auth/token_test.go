package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketly/internal/apperror"
	"ticketly/internal/auth"
)

func TestIssueAndVerifyToken(t *testing.T) {
	token, err := auth.IssueToken("secret", "user-1", auth.RoleCustomer, time.Hour)
	require.NoError(t, err)

	verifier := auth.NewHMACVerifier("secret")
	identity, err := verifier.Verify(token)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, auth.RoleCustomer, identity.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := auth.IssueToken("secret", "user-1", auth.RoleOrganizer, time.Hour)
	require.NoError(t, err)

	verifier := auth.NewHMACVerifier("other-secret")
	_, err = verifier.Verify(token)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthenticated))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	token, err := auth.IssueToken("secret", "user-1", auth.RoleCustomer, -time.Minute)
	require.NoError(t, err)

	verifier := auth.NewHMACVerifier("secret")
	_, err = verifier.Verify(token)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthenticated))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	_, err := verifier.Verify("not-a-token")
	assert.Error(t, err)
}
