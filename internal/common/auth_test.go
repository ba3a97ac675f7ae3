package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gosocial-messaging/pkg/errors"
)

func TestAuthenticator_Resolve(t *testing.T) {
	tokens := NewTokenManager("test-secret", "gosocial", time.Hour)
	token, err := tokens.GenerateToken("alice", "alice_h")
	require.NoError(t, err)

	badID, err := tokens.GenerateToken("ali:ce", "")
	require.NoError(t, err)

	tests := []struct {
		name          string
		trustHeader   bool
		authorization string
		gateway       string
		expectedUser  string
		expectedErr   error
	}{
		{name: "bearer token", authorization: "Bearer " + token, expectedUser: "alice"},
		{name: "lowercase scheme", authorization: "bearer " + token, expectedUser: "alice"},
		{name: "bad scheme", authorization: "Basic " + token, expectedErr: apperrors.ErrInvalidToken},
		{name: "invalid token", authorization: "Bearer nope", expectedErr: apperrors.ErrInvalidToken},
		{name: "token with unusable id", authorization: "Bearer " + badID, expectedErr: apperrors.ErrInvalidToken},
		{name: "nothing", expectedErr: apperrors.ErrMissingIdentity},
		{name: "gateway header ignored when untrusted", gateway: "bob", expectedErr: apperrors.ErrMissingIdentity},
		{name: "gateway header trusted", trustHeader: true, gateway: " bob ", expectedUser: "bob"},
		{name: "token wins over header", trustHeader: true, authorization: "Bearer " + token, gateway: "bob", expectedUser: "alice"},
		{name: "bad gateway id", trustHeader: true, gateway: "a:b", expectedErr: apperrors.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewAuthenticator(tokens, tt.trustHeader)
			viewer, err := auth.Resolve(tt.authorization, tt.gateway)
			if tt.expectedErr != nil {
				assert.True(t, errors.Is(err, tt.expectedErr), "got %v", err)
				assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedUser, viewer.UserID)
		})
	}
}

func TestViewerContext(t *testing.T) {
	_, ok := ViewerFromContext(context.Background())
	assert.False(t, ok)

	_, ok = ViewerFromContext(WithViewer(context.Background(), Viewer{}))
	assert.False(t, ok, "empty viewer is not an identity")

	v, ok := ViewerFromContext(WithViewer(context.Background(), Viewer{UserID: "alice"}))
	assert.True(t, ok)
	assert.Equal(t, "alice", v.UserID)
}
