package repository

import (
	"context"
	"strings"

	"compliancehub/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserFilter narrows tenant user listings
type UserFilter struct {
	Search string
	Status string
	RoleID *uuid.UUID
	Page   int
	Limit  int
}

// UserRepository defines the interface for data access of User entities.
// Every method except the privileged lookups is scoped by organization.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// GetByID and GetByEmail bypass tenant scoping; they serve token verification and login only
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetInOrg(ctx context.Context, orgID, id uuid.UUID) (*model.User, error)
	List(ctx context.Context, orgID uuid.UUID, filter UserFilter) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	CountByStatus(ctx context.Context, orgID uuid.UUID) (map[string]int64, error)
	CountByRole(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", model.NormalizeEmail(email)).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) GetInOrg(ctx context.Context, orgID, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := GetDB(ctx, r.db).Preload("Role").
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, orgID uuid.UUID, filter UserFilter) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	query := GetDB(ctx, r.db).Model(&model.User{}).Where("organization_id = ?", orgID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.RoleID != nil {
		query = query.Where("role_id = ?", *filter.RoleID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("(email LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)", like, like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Role").Order("created_at asc").Offset(offset).Limit(filter.Limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Omit("Role").Save(user).Error
}

func (r *userRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("organization_id = ? AND id = ?", orgID, id).Delete(&model.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) CountByStatus(ctx context.Context, orgID uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := GetDB(ctx, r.db).Model(&model.User{}).
		Select("status, COUNT(*) AS count").
		Where("organization_id = ?", orgID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *userRepository) CountByRole(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []struct {
		RoleID uuid.UUID
		Count  int64
	}
	err := GetDB(ctx, r.db).Model(&model.User{}).
		Select("role_id, COUNT(*) AS count").
		Where("organization_id = ? AND role_id IS NOT NULL", orgID).
		Group("role_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		out[row.RoleID] = row.Count
	}
	return out, nil
}
