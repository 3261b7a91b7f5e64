package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(accessTTL, refreshTTL time.Duration) *Manager {
	return NewManager(
		"access-secret-32-chars-long!!!!!",
		"refresh-secret-32-chars-long!!!!",
		accessTTL, refreshTTL,
	)
}

func TestManager_IssueAndParse(t *testing.T) {
	mgr := newTestManager(15*time.Minute, 7*24*time.Hour)
	userID := uuid.New()

	pair, refreshID, err := mgr.Issue(userID, "merchant@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEmpty(t, refreshID)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	t.Run("access token round-trips subject and email", func(t *testing.T) {
		claims, err := mgr.ParseAccess(pair.AccessToken)
		require.NoError(t, err)

		got, err := claims.SubjectID()
		require.NoError(t, err)
		assert.Equal(t, userID, got)
		assert.Equal(t, "merchant@example.com", claims.Email)
		assert.Empty(t, claims.ID, "access tokens carry no jti")
	})

	t.Run("refresh token carries the returned jti", func(t *testing.T) {
		claims, err := mgr.ParseRefresh(pair.RefreshToken)
		require.NoError(t, err)

		got, err := claims.SubjectID()
		require.NoError(t, err)
		assert.Equal(t, userID, got)
		assert.Equal(t, refreshID, claims.ID)
		assert.Empty(t, claims.Email, "refresh tokens carry no email")
	})
}

func TestManager_RejectsCrossKindTokens(t *testing.T) {
	mgr := newTestManager(15*time.Minute, 7*24*time.Hour)
	pair, _, err := mgr.Issue(uuid.New(), "x@example.com")
	require.NoError(t, err)

	_, err = mgr.ParseRefresh(pair.AccessToken)
	assert.Error(t, err, "access token must not verify with the refresh secret")

	_, err = mgr.ParseAccess(pair.RefreshToken)
	assert.Error(t, err, "refresh token must not verify with the access secret")
}

func TestManager_RejectsGarbage(t *testing.T) {
	mgr := newTestManager(15*time.Minute, time.Hour)

	_, err := mgr.ParseAccess("not-a-token")
	assert.Error(t, err)
}

func TestManager_RejectsExpired(t *testing.T) {
	mgr := newTestManager(-1*time.Second, -1*time.Second)
	pair, _, err := mgr.Issue(uuid.New(), "late@example.com")
	require.NoError(t, err)

	_, err = mgr.ParseAccess(pair.AccessToken)
	assert.Error(t, err)

	_, err = mgr.ParseRefresh(pair.RefreshToken)
	assert.Error(t, err)
}

func TestManager_RejectsForeignIssuer(t *testing.T) {
	mgr := newTestManager(15*time.Minute, time.Hour)
	other := NewManager(
		"access-secret-32-chars-long-2!!!",
		"refresh-secret-32-chars-long-2!!",
		15*time.Minute, time.Hour,
	)

	pair, _, err := other.Issue(uuid.New(), "stranger@example.com")
	require.NoError(t, err)

	_, err = mgr.ParseAccess(pair.AccessToken)
	assert.Error(t, err, "tokens signed with a different secret must fail")
}
