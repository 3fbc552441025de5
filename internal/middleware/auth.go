package middleware

import (
	"context"
	"errors"
	"strings"

	"compliancehub/internal/apperror"
	"compliancehub/internal/metrics"
	"compliancehub/internal/service"

	"github.com/gin-gonic/gin"
)

const accessCookie = "access_token"

var errTokenRequired = apperror.Authentication("Access token required")

// TokenVerifier is the part of the auth service the middleware needs
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*service.Identity, error)
}

// Authenticate verifies the bearer token and attaches the caller's identity.
// Browsers may send the token as the access_token cookie; websocket upgrades may pass it as ?token=.
func Authenticate(verifier TokenVerifier, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFrom(c)
		if token == "" {
			m.AuthFailed("missing_token")
			Abort(c, errTokenRequired)
			return
		}

		id, err := verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			m.AuthFailed(reason(err))
			Abort(c, err)
			return
		}

		SetIdentity(c, *id)
		c.Next()
	}
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if cookie, err := c.Cookie(accessCookie); err == nil && cookie != "" {
		return cookie
	}
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}

func reason(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, service.ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, service.ErrUnauthorized):
		return "inactive_user"
	case errors.Is(err, apperror.ErrInternal):
		return "error"
	default:
		return "invalid_token"
	}
}
