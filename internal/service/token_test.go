package service

import (
	"testing"
	"time"

	"compliancehub/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager(testAuthConfig)
	role := uuid.New()
	user := &model.User{ID: uuid.New(), Email: "a@x.com", OrganizationID: uuid.New(), RoleID: &role}

	token, err := m.GenerateToken(user)
	require.NoError(t, err)
	claims, err := m.ParseAccess(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, user.OrganizationID.String(), claims.OrganizationID)
	assert.Equal(t, role.String(), claims.RoleID)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)

	refresh, err := m.GenerateRefreshToken(user)
	require.NoError(t, err)
	rc, err := m.ParseRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh", rc.Type)
	assert.NotEqual(t, claims.ID, rc.ID)

	_, err = m.ParseAccess(refresh)
	assert.Equal(t, ErrInvalidToken, err)
	_, err = m.ParseRefresh(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager(testAuthConfig)
	user := &model.User{ID: uuid.New(), Email: "a@x.com", OrganizationID: uuid.New()}

	// alg none
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		UserID:           user.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{Issuer: testAuthConfig.Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ParseAccess(unsigned)
	assert.Equal(t, ErrInvalidToken, err)

	// foreign issuer
	other := testAuthConfig
	other.Issuer = "someone-else"
	foreign, err := NewTokenManager(other).GenerateToken(user)
	require.NoError(t, err)
	_, err = m.ParseAccess(foreign)
	assert.Equal(t, ErrInvalidToken, err)

	// expired
	past := NewTokenManager(testAuthConfig)
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := past.GenerateToken(user)
	require.NoError(t, err)
	_, err = m.ParseAccess(old)
	assert.Equal(t, ErrTokenExpired, err)
}
