package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Authentication("who"), http.StatusUnauthorized},
		{Authorization("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{&Error{Kind: KindRateLimit, Message: "slow down"}, http.StatusTooManyRequests},
		{Internal("boom", errors.New("db down")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NotFound("role not found")), http.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("ctx: %w", NotFound("User not found"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	err := Internal("Failed to verify permissions", errors.New("pq: connection refused"))
	assert.Equal(t, "Failed to verify permissions", PublicMessage(err, false))
	assert.Contains(t, PublicMessage(err, true), "connection refused")

	assert.Equal(t, "Internal server error", PublicMessage(errors.New("secret detail"), false))
	assert.Equal(t, "Cannot delete default role", PublicMessage(Validation("Cannot delete default role"), false))
}
