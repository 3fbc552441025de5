package handler

import (
	"net/http"
	"strconv"

	"compliancehub/internal/config"
	"compliancehub/internal/service"
	"compliancehub/internal/websocket"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService  service.AuditService
	hub           *websocket.Hub
	guards        Guards
	adminRoleName string
}

func NewAuditHandler(auditService service.AuditService, hub *websocket.Hub, guards Guards, adminRoleName string) *AuditHandler {
	return &AuditHandler{auditService: auditService, hub: hub, guards: guards, adminRoleName: adminRoleName}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	g := h.guards
	general := g.Limits.Limit(config.LimitGeneral)

	group := router.Group("/organizations/audit-logs", g.Authenticate, g.Authz.RequireOrganizationAccess("orgId"))
	{
		group.GET("", g.Authz.RequirePermission("audit:read"), general, h.GetAuditLogs)
		group.GET("/stats", g.Authz.RequirePermission("audit:read"), general, h.GetAuditStats)
		group.GET("/export", g.Authz.RequirePermission("audit:export"), g.Limits.Limit(config.LimitExport), h.ExportAuditLogs)
		group.POST("/cleanup", g.Authz.RequirePermission("audit:delete"), g.Authz.RequireRole(h.adminRoleName), g.Limits.Limit(config.LimitStrict), h.Cleanup)
		group.GET("/stream", g.Authz.RequirePermission("audit:read"), general, h.Stream)
	}
}

// GetAuditLogs pages through the organization's audit trail, newest first
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        userId     query     string  false  "Actor user id"
// @Param        action     query     string  false  "Action, e.g. CREATE_USER"
// @Param        resource   query     string  false  "Resource, e.g. users"
// @Param        startDate  query     string  false  "RFC3339 or YYYY-MM-DD"
// @Param        endDate    query     string  false  "RFC3339 or YYYY-MM-DD"
// @Param        ipAddress  query     string  false  "Client IP"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Items per page (default 20)"
// @Success      200        {object}  service.AuditLogListResponse
// @Failure      400        {object}  response.ErrorResponse
// @Router       /organizations/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var q service.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.auditService.List(c.Request.Context(), id, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetAuditStats aggregates the trail per action, resource and day
// @Summary      Audit statistics
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        topN  query     int  false  "Size of the top lists (default 10)"
// @Success      200   {object}  model.AuditStats
// @Router       /organizations/audit-logs/stats [get]
func (h *AuditHandler) GetAuditStats(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var q service.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	topN, _ := strconv.Atoi(c.DefaultQuery("topN", "10"))

	stats, err := h.auditService.Stats(c.Request.Context(), id, q, topN)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExportAuditLogs downloads the filtered trail as CSV or JSON
// @Summary      Export audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Produce      text/csv
// @Param        format  query  string  false  "csv or json (default json)"
// @Success      200
// @Failure      400  {object}  response.ErrorResponse
// @Failure      429  {object}  response.ErrorResponse
// @Router       /organizations/audit-logs/export [get]
func (h *AuditHandler) ExportAuditLogs(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var q service.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.auditService.Export(c.Request.Context(), id, q, c.Query("format"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	c.Header("X-Total-Count", strconv.Itoa(res.Count))
	c.Data(http.StatusOK, res.ContentType, res.Body)
}

// Cleanup deletes the organization's entries older than the retention window
// @Summary      Audit retention cleanup
// @Tags         audit
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CleanupRequest  false  "Retention in days (default 90)"
// @Success      200      {object}  service.CleanupResult
// @Failure      403      {object}  response.ErrorResponse
// @Router       /organizations/audit-logs/cleanup [post]
func (h *AuditHandler) Cleanup(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.CleanupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	res, err := h.auditService.Cleanup(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Stream upgrades to a websocket that receives the organization's new entries
// @Summary      Live audit stream
// @Tags         audit
// @Param        token  query  string  true  "Access token"
// @Success      101
// @Router       /organizations/audit-logs/stream [get]
func (h *AuditHandler) Stream(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	websocket.ServeWs(h.hub, c, id.OrganizationID)
}
