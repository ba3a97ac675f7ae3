package common

import (
	"strings"

	apperrors "gosocial-messaging/pkg/errors"
)

// UserIDHeader carries the caller id when a trusted gateway has already
// authenticated the request.
const UserIDHeader = "X-User-ID"

// Authenticator turns transport credentials into a Viewer. HTTP and gRPC
// share it so both surfaces accept the same identities.
type Authenticator struct {
	tokens      *TokenManager
	trustHeader bool
}

func NewAuthenticator(tokens *TokenManager, trustHeader bool) *Authenticator {
	return &Authenticator{tokens: tokens, trustHeader: trustHeader}
}

// Resolve checks the authorization value first ("Bearer <token>") and falls
// back to the gateway header when trusted.
func (a *Authenticator) Resolve(authorization, gatewayUserID string) (Viewer, error) {
	if authorization != "" {
		parts := strings.Fields(authorization)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return Viewer{}, apperrors.ErrInvalidToken
		}
		if a.tokens == nil {
			return Viewer{}, apperrors.ErrInvalidToken
		}
		claims, err := a.tokens.ValidToken(parts[1])
		if err != nil {
			return Viewer{}, apperrors.ErrInvalidToken
		}
		if err := ValidateUserID("userId", claims.UserID); err != nil {
			return Viewer{}, apperrors.ErrInvalidToken
		}
		return Viewer{UserID: claims.UserID, Handle: claims.Handle}, nil
	}

	if a.trustHeader && gatewayUserID != "" {
		id := strings.TrimSpace(gatewayUserID)
		if err := ValidateUserID("userId", id); err != nil {
			return Viewer{}, apperrors.ErrInvalidToken
		}
		return Viewer{UserID: id}, nil
	}

	return Viewer{}, apperrors.ErrMissingIdentity
}
