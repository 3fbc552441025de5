package repository

import (
	"context"
	"time"

	"compliancehub/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditRepository is append-only: entries are never updated, and deletion is limited to
// the retention sweep.
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter model.AuditFilter) ([]model.AuditLog, int64, error)
	Stats(ctx context.Context, filter model.AuditFilter, topN int) (*model.AuditStats, error)
	DeleteOlderThan(ctx context.Context, orgID *uuid.UUID, cutoff time.Time) (int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) scoped(ctx context.Context, f model.AuditFilter) *gorm.DB {
	q := GetDB(ctx, r.db).Model(&model.AuditLog{})
	if f.OrganizationID != nil {
		q = q.Where("organization_id = ?", *f.OrganizationID)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Resource != "" {
		q = q.Where("resource = ?", f.Resource)
	}
	if f.IPAddress != "" {
		q = q.Where("ip_address = ?", f.IPAddress)
	}
	if f.StartDate != nil {
		q = q.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("created_at <= ?", *f.EndDate)
	}
	return q
}

// List pages newest-first; Limit <= 0 returns every matching entry
func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	if err := r.scoped(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := r.scoped(ctx, filter).Order("created_at desc")
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * filter.Limit).Limit(filter.Limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func (r *auditRepository) Stats(ctx context.Context, filter model.AuditFilter, topN int) (*model.AuditStats, error) {
	stats := &model.AuditStats{}
	if err := r.scoped(ctx, filter).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	group := func(expr string, limit int) ([]model.CountEntry, error) {
		var rows []model.CountEntry
		q := r.scoped(ctx, filter).
			Select(expr + " AS key, COUNT(*) AS count").
			Group(expr)
		if limit > 0 {
			q = q.Order("count desc").Limit(limit)
		} else {
			q = q.Order("key asc")
		}
		if err := q.Scan(&rows).Error; err != nil {
			return nil, err
		}
		return rows, nil
	}

	var err error
	if stats.ByAction, err = group("action", 0); err != nil {
		return nil, err
	}
	if stats.ByResource, err = group("resource", 0); err != nil {
		return nil, err
	}
	if stats.ByDay, err = group("CAST(DATE(created_at) AS TEXT)", 0); err != nil {
		return nil, err
	}
	if stats.TopActions, err = group("action", topN); err != nil {
		return nil, err
	}

	var users []model.CountEntry
	err = r.scoped(ctx, filter).
		Select("COALESCE(user_email, CAST(user_id AS TEXT)) AS key, COUNT(*) AS count").
		Where("user_id IS NOT NULL").
		Group("user_id, user_email").
		Order("count desc").
		Limit(topN).
		Scan(&users).Error
	if err != nil {
		return nil, err
	}
	stats.TopUsers = users

	return stats, nil
}

// DeleteOlderThan is the retention sweep; orgID nil sweeps every tenant
func (r *auditRepository) DeleteOlderThan(ctx context.Context, orgID *uuid.UUID, cutoff time.Time) (int64, error) {
	q := GetDB(ctx, r.db).Where("created_at < ?", cutoff)
	if orgID != nil {
		q = q.Where("organization_id = ?", *orgID)
	}
	res := q.Delete(&model.AuditLog{})
	return res.RowsAffected, res.Error
}
