package handler

import (
	"compliancehub/internal/apperror"
	"compliancehub/internal/middleware"
	"compliancehub/internal/service"

	"github.com/gin-gonic/gin"
)

// Guards is the middleware protected routes are assembled from. Handlers chain them in
// the order authenticate -> authorize -> rate limit -> handler.
type Guards struct {
	Authenticate gin.HandlerFunc
	Authz        *middleware.Authorizer
	Limits       *middleware.RateLimiter
}

// respondError maps err onto the taxonomy and writes {"error": msg}
func respondError(c *gin.Context, err error) {
	middleware.Abort(c, err)
}

func badRequest(c *gin.Context, err error) {
	middleware.Abort(c, apperror.Validation("Invalid request payload: "+err.Error()))
}

// actor returns the authenticated caller, answering 401 when there is none
func actor(c *gin.Context) (service.Identity, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		middleware.Abort(c, apperror.Authentication("Access token required"))
	}
	return id, ok
}
