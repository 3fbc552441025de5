package middleware

import (
	"strings"

	"compliancehub/internal/apperror"
	"compliancehub/internal/metrics"
	"compliancehub/internal/model"
	"compliancehub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	errInsufficient = apperror.Authorization("Insufficient permissions")
	errOrgAccess    = apperror.Authorization("Access denied to this organization")
)

// Authorizer builds the permission and role guards. Every guard expects Authenticate
// to have run first and answers 401 when it has not.
type Authorizer struct {
	perms   service.PermissionService
	audit   *service.AuditWriter
	metrics *metrics.Metrics
}

func NewAuthorizer(perms service.PermissionService, audit *service.AuditWriter, m *metrics.Metrics) *Authorizer {
	return &Authorizer{perms: perms, audit: audit, metrics: m}
}

// grant resolves the caller's role once per request
func (a *Authorizer) grant(c *gin.Context) (service.Identity, *service.RoleGrant, bool) {
	id, ok := CurrentIdentity(c)
	if !ok {
		Abort(c, errTokenRequired)
		return id, nil, false
	}
	if v, ok := c.Get(grantKey); ok {
		return id, v.(*service.RoleGrant), true
	}
	g, err := a.perms.ResolveRole(c.Request.Context(), id.OrganizationID, id.RoleID)
	if err != nil {
		Abort(c, err)
		return id, nil, false
	}
	c.Set(grantKey, g)
	return id, g, true
}

func (a *Authorizer) deny(c *gin.Context, id service.Identity, err error, details map[string]any) {
	a.metrics.AuthFailed("forbidden")
	details["method"] = c.Request.Method
	details["path"] = c.Request.URL.Path
	a.audit.Record(c.Request.Context(), &id, model.ActionAccessDenied, resourceOf(c), "", details)
	Abort(c, err)
}

func resourceOf(c *gin.Context) string {
	return strings.ToLower(strings.TrimPrefix(firstSegment(c.Request.URL.Path), "/"))
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// RequirePermission passes only if the caller's role holds code exactly
func (a *Authorizer) RequirePermission(code string) gin.HandlerFunc {
	return a.RequireAllPermissions(code)
}

// RequireAnyPermission passes if the role holds at least one of codes
func (a *Authorizer) RequireAnyPermission(codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, g, ok := a.grant(c)
		if !ok {
			return
		}
		for _, code := range codes {
			if g.Has(code) {
				c.Next()
				return
			}
		}
		a.deny(c, id, errInsufficient, map[string]any{"permissions": codes, "mode": "any"})
	}
}

// RequireAllPermissions passes only if the role holds every one of codes
func (a *Authorizer) RequireAllPermissions(codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, g, ok := a.grant(c)
		if !ok {
			return
		}
		var missing []string
		for _, code := range codes {
			if !g.Has(code) {
				missing = append(missing, code)
			}
		}
		if len(missing) > 0 {
			details := map[string]any{"permissions": missing}
			if len(codes) == 1 {
				details = map[string]any{"permission": codes[0]}
			}
			a.deny(c, id, errInsufficient, details)
			return
		}
		c.Next()
	}
}

// RequireRole checks the role name, case-insensitively, against names
func (a *Authorizer) RequireRole(names ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, g, ok := a.grant(c)
		if !ok {
			return
		}
		for _, name := range names {
			if g.Name != "" && strings.EqualFold(g.Name, name) {
				c.Next()
				return
			}
		}
		a.deny(c, id, errInsufficient, map[string]any{"roles": names})
	}
}

// RequireSelfOrPermission lets callers act on their own user id (path param) without code
func (a *Authorizer) RequireSelfOrPermission(param, code string) gin.HandlerFunc {
	check := a.RequirePermission(code)
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			Abort(c, errTokenRequired)
			return
		}
		if target, err := uuid.Parse(c.Param(param)); err == nil && target == id.ID {
			c.Next()
			return
		}
		check(c)
	}
}

// RequireOrganizationAccess rejects requests naming an organization other than the caller's,
// either as the path param or as ?organizationId=
func (a *Authorizer) RequireOrganizationAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			Abort(c, errTokenRequired)
			return
		}
		for _, ref := range []string{c.Param(param), c.Query("organizationId")} {
			if ref == "" {
				continue
			}
			if orgID, err := uuid.Parse(ref); err != nil || orgID != id.OrganizationID {
				a.deny(c, id, errOrgAccess, map[string]any{"organizationId": ref})
				return
			}
		}
		c.Next()
	}
}
