package handler

import (
	"net/http"

	"compliancehub/internal/config"
	"compliancehub/internal/service"

	"github.com/gin-gonic/gin"
)

type OrganizationHandler struct {
	orgService     service.OrganizationService
	billingService service.BillingService
	reportService  service.ReportService
	guards         Guards
}

func NewOrganizationHandler(
	orgService service.OrganizationService,
	billingService service.BillingService,
	reportService service.ReportService,
	guards Guards,
) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService, billingService: billingService, reportService: reportService, guards: guards}
}

// RegisterRoutes mounts /organizations. Every route rejects an explicit organization id
// (path or ?organizationId=) other than the caller's.
func (h *OrganizationHandler) RegisterRoutes(router *gin.RouterGroup) {
	g := h.guards
	general := g.Limits.Limit(config.LimitGeneral)

	orgs := router.Group("/organizations", g.Authenticate, g.Authz.RequireOrganizationAccess("orgId"))
	{
		orgs.GET("", g.Authz.RequirePermission("organizations:read"), general, h.GetOrganization)
		orgs.PUT("", g.Authz.RequirePermission("organizations:update"), general, h.UpdateOrganization)
		orgs.GET("/settings", g.Authz.RequirePermission("settings:read"), general, h.GetSettings)
		orgs.PUT("/settings", g.Authz.RequirePermission("settings:update"), general, h.UpdateSettings)
		orgs.GET("/subscription", g.Authz.RequirePermission("organizations:read"), general, h.GetSubscription)
		orgs.POST("/reports/compliance", g.Authz.RequirePermission("reports:create"), g.Limits.Limit(config.LimitStrict), h.ComplianceReport)
		orgs.GET("/:orgId", g.Authz.RequirePermission("organizations:read"), general, h.GetOrganizationByID)
	}
}

// GetOrganization returns the caller's organization
// @Summary      Get organization
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  service.OrganizationResponse
// @Router       /organizations [get]
func (h *OrganizationHandler) GetOrganization(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	org, err := h.orgService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// GetOrganizationByID answers only for the caller's own organization
// @Summary      Get organization by id
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Param        orgId  path      string  true  "Organization ID"
// @Success      200    {object}  service.OrganizationResponse
// @Failure      403    {object}  response.ErrorResponse
// @Router       /organizations/{orgId} [get]
func (h *OrganizationHandler) GetOrganizationByID(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	org, err := h.orgService.GetByID(c.Request.Context(), id, c.Param("orgId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// UpdateOrganization renames the organization
// @Summary      Update organization
// @Tags         organizations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.UpdateOrganizationRequest  true  "Organization"
// @Success      200      {object}  service.OrganizationResponse
// @Failure      400      {object}  response.ErrorResponse
// @Router       /organizations [put]
func (h *OrganizationHandler) UpdateOrganization(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	org, err := h.orgService.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// GetSettings returns the settings document
// @Summary      Get settings
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  object
// @Router       /organizations/settings [get]
func (h *OrganizationHandler) GetSettings(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	settings, err := h.orgService.GetSettings(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", settings)
}

// UpdateSettings replaces the settings document
// @Summary      Update settings
// @Tags         organizations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      object  true  "Settings document"
// @Success      200      {object}  object
// @Failure      400      {object}  response.ErrorResponse
// @Router       /organizations/settings [put]
func (h *OrganizationHandler) UpdateSettings(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}

	settings, err := h.orgService.UpdateSettings(c.Request.Context(), id, raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", settings)
}

// GetSubscription returns the organization's current subscription
// @Summary      Get subscription
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  model.Subscription
// @Failure      404  {object}  response.ErrorResponse
// @Router       /organizations/subscription [get]
func (h *OrganizationHandler) GetSubscription(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	sub, err := h.billingService.GetSubscription(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ComplianceReport builds the access-review report for a period (default last 30 days)
// @Summary      Generate compliance report
// @Tags         organizations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ComplianceReportRequest  false  "Period"
// @Success      200      {object}  service.ComplianceReport
// @Failure      400      {object}  response.ErrorResponse
// @Router       /organizations/reports/compliance [post]
func (h *OrganizationHandler) ComplianceReport(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var req service.ComplianceReportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	report, err := h.reportService.Compliance(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
