package handler

import (
	"net/http"

	"compliancehub/internal/config"
	"compliancehub/internal/service"
	"compliancehub/pkg/response"

	"github.com/gin-gonic/gin"
)

const oauthStateCookie = "oauth_state"

type AuthHandler struct {
	authService  service.AuthService
	oauthService service.OAuthService
	guards       Guards
	secureCookie bool
}

func NewAuthHandler(authService service.AuthService, oauthService service.OAuthService, guards Guards, secureCookie bool) *AuthHandler {
	return &AuthHandler{authService: authService, oauthService: oauthService, guards: guards, secureCookie: secureCookie}
}

func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	g := h.guards
	auth := router.Group("/auth")
	{
		auth.POST("/register", g.Limits.Limit(config.LimitStrict), h.Register)
		auth.POST("/login", g.Limits.Limit(config.LimitLogin), h.Login)
		auth.POST("/refresh", g.Limits.Limit(config.LimitStrict), h.Refresh)
		auth.POST("/forgot-password", g.Limits.Limit(config.LimitPasswordReset), h.ForgotPassword)
		auth.POST("/reset-password", g.Limits.Limit(config.LimitPasswordReset), h.ResetPassword)
		auth.GET("/oauth/:provider", g.Limits.Limit(config.LimitStrict), h.OAuthStart)
		auth.GET("/callback", g.Limits.Limit(config.LimitStrict), h.OAuthCallback)

		auth.POST("/logout", g.Authenticate, g.Limits.Limit(config.LimitGeneral), h.Logout)
		auth.GET("/me", g.Authenticate, g.Limits.Limit(config.LimitGeneral), h.Me)
	}
}

// Register signs up a new organization and its first administrator
// @Summary      Register organization
// @Description  Creates the identity account, organization, default Admin role, user and pending subscription
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterRequest  true  "Registration"
// @Success      201      {object}  service.AuthResponse
// @Failure      400      {object}  response.ErrorResponse
// @Failure      500      {object}  response.ErrorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Login authenticates with email and password
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Credentials"
// @Success      200      {object}  service.AuthResponse
// @Failure      401      {object}  response.ErrorResponse
// @Failure      403      {object}  response.ErrorResponse
// @Failure      429      {object}  response.ErrorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new token pair
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshRequest  true  "Refresh token"
// @Success      200      {object}  service.AuthResponse
// @Failure      401      {object}  response.ErrorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req service.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented access token, and the refresh token when supplied
// @Summary      Logout
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LogoutRequest  false  "Refresh token to revoke"
// @Success      200      {object}  response.MessageResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.LogoutRequest
	// the body is optional
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.Logout(c.Request.Context(), id, req.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message("Logged out successfully"))
}

// ForgotPassword always answers 200 so accounts cannot be enumerated
// @Summary      Request password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ForgotPasswordRequest  true  "Email"
// @Success      200      {object}  response.MessageResponse
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req service.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	_ = h.authService.ForgotPassword(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, response.Message("If an account exists for that email, a reset link has been sent"))
}

// ResetPassword consumes a reset token
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ResetPasswordRequest  true  "Token and new password"
// @Success      200      {object}  response.MessageResponse
// @Failure      400      {object}  response.ErrorResponse
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req service.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message("Password has been reset"))
}

// Me returns the caller with its role and resolved permission codes
// @Summary      Current user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  service.MeResponse
// @Failure      401  {object}  response.ErrorResponse
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	me, err := h.authService.Me(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

// OAuthStart redirects to the provider and pins the state in a cookie
// @Summary      Start OAuth sign-in
// @Tags         auth
// @Param        provider  path  string  true  "Provider name"
// @Success      302
// @Failure      400  {object}  response.ErrorResponse
// @Router       /auth/oauth/{provider} [get]
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	redirect, state, err := h.oauthService.Begin(c.Param("provider"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/auth", "", h.secureCookie, true)
	c.Redirect(http.StatusFound, redirect)
}

// OAuthCallback finishes the flow. Known users are sent to the app with a token,
// unknown identities to onboarding.
// @Summary      OAuth callback
// @Tags         auth
// @Param        code   query  string  true  "Authorization code"
// @Param        state  query  string  true  "State"
// @Success      302
// @Failure      400  {object}  response.ErrorResponse
// @Failure      401  {object}  response.ErrorResponse
// @Router       /auth/callback [get]
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	state := c.Query("state")
	pinned, err := c.Cookie(oauthStateCookie)
	if err != nil || pinned == "" || pinned != state {
		respondError(c, service.ErrInvalidState)
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/auth", "", h.secureCookie, true)

	next, err := h.oauthService.Complete(c.Request.Context(), state, c.Query("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, next)
}
