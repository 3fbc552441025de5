package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SubscriptionPending = "pending"
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
)

// Subscription is created by signup and transitioned by payment provider events
type Subscription struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"organizationId"`
	PlanName       string          `gorm:"type:varchar(100);not null" json:"planName"`
	Price          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status         string          `gorm:"type:varchar(20);not null;index" json:"status"`
	ExternalRef    string          `gorm:"type:varchar(255);index" json:"externalRef,omitempty"` // payment provider session id
	ActivatedAt    *time.Time      `json:"activatedAt,omitempty"`
	ExpiredAt      *time.Time      `json:"expiredAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
