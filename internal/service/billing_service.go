package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/config"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
)

// Payment provider event types
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

var ErrInvalidSignature = apperror.Authentication("Invalid webhook signature")

// BillingEvent is the webhook payload sent by the payment provider
type BillingEvent struct {
	Type           string `json:"type" binding:"required"`
	OrganizationID string `json:"organizationId" binding:"required"`
	SessionID      string `json:"sessionId"`
}

// BillingService owns the subscription lifecycle: pending -> active -> expired
type BillingService interface {
	CreatePending(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error)
	GetSubscription(ctx context.Context, actor Identity) (*model.Subscription, error)
	VerifySignature(body []byte, signature string) error
	// HandleEvent returns the subscription and whether it changed state
	HandleEvent(ctx context.Context, evt BillingEvent) (*model.Subscription, bool, error)
}

type billingService struct {
	subs  repository.SubscriptionRepository
	audit *AuditWriter
	cfg   config.BillingConfig
	now   func() time.Time
}

func NewBillingService(subs repository.SubscriptionRepository, audit *AuditWriter, cfg config.BillingConfig) BillingService {
	return &billingService{subs: subs, audit: audit, cfg: cfg, now: time.Now}
}

func (s *billingService) CreatePending(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	sub := &model.Subscription{
		OrganizationID: orgID,
		PlanName:       s.cfg.DefaultPlanName,
		Price:          s.cfg.DefaultPlanPrice,
		Currency:       s.cfg.Currency,
		Status:         model.SubscriptionPending,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, apperror.Internal("Failed to create subscription", err)
	}
	return sub, nil
}

func (s *billingService) GetSubscription(ctx context.Context, actor Identity) (*model.Subscription, error) {
	sub, err := s.subs.GetByOrganization(ctx, actor.OrganizationID)
	if err != nil {
		return nil, notFoundOr(err, "Subscription not found", "Failed to fetch subscription")
	}
	return sub, nil
}

// VerifySignature checks a hex HMAC-SHA256 of body, optionally prefixed "sha256="
func (s *billingService) VerifySignature(body []byte, signature string) error {
	if s.cfg.WebhookSecret == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign is the counterpart of VerifySignature, used by tests and local tooling
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleEvent applies an event; transitions that do not apply are ignored
func (s *billingService) HandleEvent(ctx context.Context, evt BillingEvent) (*model.Subscription, bool, error) {
	orgID, err := uuid.Parse(evt.OrganizationID)
	if err != nil {
		return nil, false, apperror.Validation("Invalid organizationId")
	}
	sub, err := s.subs.GetByOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, apperror.NotFound("Subscription not found")
		}
		return nil, false, apperror.Internal("Failed to fetch subscription", err)
	}

	from := sub.Status
	now := s.now().UTC()
	switch evt.Type {
	case EventCheckoutCompleted:
		if sub.Status != model.SubscriptionPending {
			return sub, false, nil
		}
		sub.Status = model.SubscriptionActive
		sub.ActivatedAt = &now
	case EventCheckoutExpired:
		if sub.Status == model.SubscriptionExpired {
			return sub, false, nil
		}
		sub.Status = model.SubscriptionExpired
		sub.ExpiredAt = &now
	default:
		return sub, false, nil
	}
	if evt.SessionID != "" {
		sub.ExternalRef = evt.SessionID
	}

	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, false, apperror.Internal("Failed to update subscription", err)
	}

	s.audit.Log(ctx, &model.AuditLog{
		OrganizationID: &orgID,
		Action:         model.ActionUpdateSubscription,
		Resource:       model.ResourceSubscriptions,
		ResourceID:     sub.ID.String(),
		Details: DetailsJSON(map[string]any{
			"event": evt.Type,
			"from":  from,
			"to":    sub.Status,
		}),
	})
	return sub, true, nil
}
