package handler

import (
	"net/http"

	"compliancehub/internal/config"
	"compliancehub/internal/service"
	"compliancehub/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
	guards      Guards
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService, guards Guards) *UserHandler {
	return &UserHandler{userService: userService, guards: guards}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	g := h.guards
	general := g.Limits.Limit(config.LimitGeneral)

	users := router.Group("/users", g.Authenticate)
	{
		users.GET("", g.Authz.RequirePermission("users:read"), general, h.ListUsers)
		users.POST("", g.Authz.RequirePermission("users:create"), g.Limits.Limit(config.LimitUserCreation), h.CreateUser)
		users.POST("/bulk/import", g.Authz.RequirePermission("users:create"), g.Limits.Limit(config.LimitBulk), h.BulkImport)

		// any authenticated user; only the profile fields can change
		users.GET("/me/profile", general, h.GetProfile)
		users.PUT("/me/profile", general, h.UpdateProfile)

		users.GET("/:id", g.Authz.RequireSelfOrPermission("id", "users:read"), general, h.GetUserByID)
		users.PUT("/:id", g.Authz.RequireSelfOrPermission("id", "users:update"), general, h.UpdateUser)
		users.DELETE("/:id", g.Authz.RequirePermission("users:delete"), general, h.DeleteUser)
	}
}

// ListUsers handles GET /users
// @Summary      List users
// @Description  Paginated users of the caller's organization
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Param        search  query     string  false  "Matches email, first or last name"
// @Param        status  query     string  false  "active, inactive or suspended"
// @Param        roleId  query     string  false  "Role id"
// @Success      200     {object}  service.UserListResponse
// @Failure      403     {object}  response.ErrorResponse
// @Router       /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var q service.ListUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.userService.ListUsers(c.Request.Context(), id, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetUserByID handles GET /users/:id
// @Summary      Get user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  service.UserResponse
// @Failure      404  {object}  response.ErrorResponse
// @Router       /users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	user, err := h.userService.GetUser(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateUser handles POST /users
// @Summary      Create user
// @Description  Creates a user in the caller's organization
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateUserRequest  true  "User"
// @Success      201      {object}  service.UserResponse
// @Failure      400      {object}  response.ErrorResponse
// @Router       /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// UpdateUser handles PUT /users/:id
// @Summary      Update user
// @Description  Callers may edit themselves without users:update, except role and status
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.UpdateUserRequest  true  "Fields to change"
// @Success      200      {object}  service.UserResponse
// @Failure      400      {object}  response.ErrorResponse
// @Failure      404      {object}  response.ErrorResponse
// @Router       /users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), id, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser handles DELETE /users/:id
// @Summary      Delete user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.MessageResponse
// @Failure      404  {object}  response.ErrorResponse
// @Router       /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	if err := h.userService.DeleteUser(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message("User deleted successfully"))
}

// BulkImport handles POST /users/bulk/import
// @Summary      Bulk import users
// @Description  Each record succeeds or fails on its own
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.BulkImportRequest  true  "Users"
// @Success      200      {object}  service.BulkImportResult
// @Failure      400      {object}  response.ErrorResponse
// @Router       /users/bulk/import [post]
func (h *UserHandler) BulkImport(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.BulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.userService.BulkImport(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetProfile handles GET /users/me/profile
// @Summary      My profile
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  service.UserResponse
// @Router       /users/me/profile [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	user, err := h.userService.GetProfile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile handles PUT /users/me/profile
// @Summary      Update my profile
// @Description  Only firstName, lastName, phone and preferences are applied; other keys are ignored
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      object  true  "Profile fields"
// @Success      200      {object}  service.UserResponse
// @Failure      400      {object}  response.ErrorResponse
// @Router       /users/me/profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), id, body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
