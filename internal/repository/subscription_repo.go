package repository

import (
	"context"

	"compliancehub/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *model.Subscription) error
	// GetByOrganization returns the most recent subscription of a tenant
	GetByOrganization(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error)
	Update(ctx context.Context, sub *model.Subscription) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	return GetDB(ctx, r.db).Create(sub).Error
}

func (r *subscriptionRepository) GetByOrganization(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription
	err := GetDB(ctx, r.db).
		Where("organization_id = ?", orgID).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *model.Subscription) error {
	return GetDB(ctx, r.db).Save(sub).Error
}
