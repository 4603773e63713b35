package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *TokenManager {
	return NewTokenManager("access-secret-for-tests-0123456789ab", "refresh-secret-for-tests-0123456789", 900, 1209600)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager()
	userID := uuid.New()

	token, err := m.GenerateAccess(userID, "alice", []string{"user", "moder"})
	require.NoError(t, err)

	claims, err := m.ValidateAccess(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{"user", "moder"}, claims.Roles)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	m := newTestManager()
	userID, sessionID := uuid.New(), uuid.New()

	token, err := m.GenerateRefresh(userID, sessionID, 3)
	require.NoError(t, err)

	claims, err := m.ValidateRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, int64(3), claims.TokenVersion)
}

func TestAccessSecretDoesNotValidateRefresh(t *testing.T) {
	m := newTestManager()
	token, err := m.GenerateRefresh(uuid.New(), uuid.New(), 1)
	require.NoError(t, err)

	_, err = m.ValidateAccess(token)
	assert.Error(t, err, "refresh tokens must not pass as access tokens")
}

func TestTamperedTokenRejected(t *testing.T) {
	m := newTestManager()
	token, err := m.GenerateAccess(uuid.New(), "bob", nil)
	require.NoError(t, err)

	_, err = m.ValidateAccess(token + "x")
	assert.Error(t, err)
}

func TestHashToken_Stable(t *testing.T) {
	h1 := HashToken("abc")
	h2 := HashToken("abc")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashToken("abd"))
}
