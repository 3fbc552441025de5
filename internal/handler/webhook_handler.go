package handler

import (
	"encoding/json"
	"net/http"

	"compliancehub/internal/apperror"
	"compliancehub/internal/service"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Signature"

// WebhookHandler receives payment provider events. It is authenticated by the body
// signature, not by a session token.
type WebhookHandler struct {
	billingService service.BillingService
}

func NewWebhookHandler(billingService service.BillingService) *WebhookHandler {
	return &WebhookHandler{billingService: billingService}
}

func (h *WebhookHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/webhooks/billing", h.Billing)
}

// Billing applies a checkout event to the organization's subscription
// @Summary      Billing webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Signature  header    string               true  "hex HMAC-SHA256 of the body"
// @Param        payload      body      service.BillingEvent  true  "Event"
// @Success      200          {object}  object
// @Failure      400          {object}  response.ErrorResponse
// @Failure      401          {object}  response.ErrorResponse
// @Router       /webhooks/billing [post]
func (h *WebhookHandler) Billing(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.billingService.VerifySignature(body, c.GetHeader(signatureHeader)); err != nil {
		respondError(c, err)
		return
	}

	var evt service.BillingEvent
	if err := json.Unmarshal(body, &evt); err != nil || evt.Type == "" || evt.OrganizationID == "" {
		respondError(c, apperror.Validation("Invalid webhook payload"))
		return
	}

	sub, changed, err := h.billingService.HandleEvent(c.Request.Context(), evt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"changed":  changed,
		"status":   sub.Status,
	})
}
