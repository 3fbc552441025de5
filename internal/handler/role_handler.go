package handler

import (
	"net/http"

	"compliancehub/internal/config"
	"compliancehub/internal/service"
	"compliancehub/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
	guards      Guards
}

func NewRoleHandler(roleService service.RoleService, guards Guards) *RoleHandler {
	return &RoleHandler{roleService: roleService, guards: guards}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	g := h.guards
	general := g.Limits.Limit(config.LimitGeneral)

	roles := router.Group("/roles", g.Authenticate)
	{
		roles.GET("", g.Authz.RequirePermission("roles:read"), general, h.GetRoles)
		roles.POST("", g.Authz.RequirePermission("roles:create"), general, h.CreateRole)
		roles.GET("/system/permissions", g.Authz.RequirePermission("roles:read"), general, h.GetPermissions)
		roles.GET("/:id", g.Authz.RequirePermission("roles:read"), general, h.GetRole)
		roles.PUT("/:id", g.Authz.RequirePermission("roles:update"), general, h.UpdateRole)
		roles.DELETE("/:id", g.Authz.RequirePermission("roles:delete"), general, h.DeleteRole)
	}
}

// GetRoles lists roles of the caller's organization with their permissions
// @Summary      List roles
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   service.RoleResponse
// @Failure      403  {object}  response.ErrorResponse
// @Router       /roles [get]
func (h *RoleHandler) GetRoles(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	roles, err := h.roleService.ListRoles(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

// GetRole returns one role
// @Summary      Get role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  service.RoleResponse
// @Failure      404  {object}  response.ErrorResponse
// @Router       /roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	role, err := h.roleService.GetRole(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// CreateRole creates a role with an initial permission set
// @Summary      Create role
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRoleRequest  true  "Role"
// @Success      201      {object}  service.RoleResponse
// @Failure      400      {object}  response.ErrorResponse
// @Router       /roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	role, err := h.roleService.CreateRole(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// UpdateRole renames a role or replaces its permission set
// @Summary      Update role
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Role ID"
// @Param        payload  body      service.UpdateRoleRequest  true  "Fields to change"
// @Success      200      {object}  service.RoleResponse
// @Failure      400      {object}  response.ErrorResponse
// @Failure      404      {object}  response.ErrorResponse
// @Router       /roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	role, err := h.roleService.UpdateRole(c.Request.Context(), id, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// DeleteRole removes a role that is neither default nor assigned
// @Summary      Delete role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.MessageResponse
// @Failure      400  {object}  response.ErrorResponse
// @Failure      404  {object}  response.ErrorResponse
// @Router       /roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	if err := h.roleService.DeleteRole(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message("Role deleted successfully"))
}

// GetPermissions lists the global permission catalog
// @Summary      Permission catalog
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  service.PermissionResponse
// @Router       /roles/system/permissions [get]
func (h *RoleHandler) GetPermissions(c *gin.Context) {
	perms, err := h.roleService.ListPermissions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, perms)
}
