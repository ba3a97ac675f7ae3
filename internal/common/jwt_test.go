package common

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret", "gosocial", time.Hour)

	token, err := m.GenerateToken("alice", "alice_h")
	require.NoError(t, err)

	claims, err := m.ValidToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "alice_h", claims.Handle)
	assert.Equal(t, "gosocial", claims.Issuer)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("test-secret", "gosocial", time.Hour)

	other, err := NewTokenManager("other-secret", "gosocial", time.Hour).GenerateToken("alice", "")
	require.NoError(t, err)

	wrongIssuer, err := NewTokenManager("test-secret", "someone-else", time.Hour).GenerateToken("alice", "")
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gosocial",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "gosocial"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: other},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "expired", token: expired},
		{name: "missing user id", token: noUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestTokenManager_NoSecret(t *testing.T) {
	m := NewTokenManager("", "gosocial", 0)

	_, err := m.GenerateToken("alice", "")
	assert.Error(t, err)

	_, err = m.ValidToken("anything")
	assert.Error(t, err)
}
