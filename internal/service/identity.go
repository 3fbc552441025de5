package service

import (
	"context"
	"errors"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
)

// Token failures. Each maps to 401 with its own message.
var (
	ErrInvalidToken = apperror.Authentication("Invalid token")
	ErrTokenExpired = apperror.Authentication("Token expired")
	ErrTokenRevoked = apperror.Authentication("Token has been revoked")
	ErrUnauthorized = apperror.Authentication("User not found or inactive")
)

// Identity is the minimal projection of the authenticated caller carried through a request
type Identity struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name,omitempty"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	RoleID         *uuid.UUID `json:"roleId"`
	Status         string     `json:"status"`

	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// RequestMeta is the HTTP context stamped onto audit entries written while serving a request
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Method    string
	URL       string
}

type requestMetaKey struct{}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}

// parseID turns a path parameter into a uuid; a malformed id is reported as absent
func parseID(id, notFound string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperror.NotFound(notFound)
	}
	return parsed, nil
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound(notFound)
	}
	return apperror.Internal(internal, err)
}
