package middleware

import (
	"compliancehub/internal/apperror"
	"compliancehub/internal/service"
	"compliancehub/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	identityKey = "identity"
	grantKey    = "roleGrant"
	verboseKey  = "verboseErrors"
)

// SetIdentity attaches the authenticated caller to the request
func SetIdentity(c *gin.Context, id service.Identity) {
	c.Set(identityKey, id)
}

// CurrentIdentity returns the caller set by Authenticate
func CurrentIdentity(c *gin.Context) (service.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return service.Identity{}, false
	}
	id, ok := v.(service.Identity)
	return id, ok
}

// VerboseErrors makes Abort include internal error detail; development only
func VerboseErrors(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(verboseKey, enabled)
		c.Next()
	}
}

// Abort writes {"error": msg} with the status matching err and stops the chain
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperror.HTTPStatus(err), response.Error(apperror.PublicMessage(err, c.GetBool(verboseKey))))
}
