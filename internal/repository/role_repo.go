package repository

import (
	"context"
	"strings"

	"compliancehub/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	GetInOrg(ctx context.Context, orgID, id uuid.UUID) (*model.Role, error)
	GetByNameInOrg(ctx context.Context, orgID uuid.UUID, name string) (*model.Role, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]model.Role, error)
	ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error
	ClearPermissions(ctx context.Context, role *model.Role) error

	// Global permission catalog
	ListPermissions(ctx context.Context) ([]model.Permission, error)
	UpsertPermission(ctx context.Context, perm *model.Permission) error
	PermissionsForRole(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error)
	PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]model.Permission, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	perms := role.Permissions
	db := GetDB(ctx, r.db)
	if err := db.Omit(clause.Associations).Create(role).Error; err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}
	return db.Model(role).Association("Permissions").Replace(perms)
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(role).Error
}

func (r *roleRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("organization_id = ? AND id = ?", orgID, id).Delete(&model.Role{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roleRepository) GetInOrg(ctx context.Context, orgID, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	err := GetDB(ctx, r.db).Preload("Permissions").
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&role).Error
	if err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (r *roleRepository) GetByNameInOrg(ctx context.Context, orgID uuid.UUID, name string) (*model.Role, error) {
	var role model.Role
	err := GetDB(ctx, r.db).Preload("Permissions").
		Where("organization_id = ? AND LOWER(name) = ?", orgID, strings.ToLower(strings.TrimSpace(name))).
		First(&role).Error
	if err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (r *roleRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]model.Role, error) {
	var roles []model.Role
	err := GetDB(ctx, r.db).Preload("Permissions").
		Where("organization_id = ?", orgID).
		Order("created_at asc").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error {
	return GetDB(ctx, r.db).Model(role).Association("Permissions").Replace(perms)
}

func (r *roleRepository) ClearPermissions(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Model(role).Association("Permissions").Clear()
}

func (r *roleRepository) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Order("resource asc, action asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *roleRepository) UpsertPermission(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).
		Where("resource = ? AND action = ?", perm.Resource, perm.Action).
		Attrs(model.Permission{Description: perm.Description}).
		FirstOrCreate(perm).Error
}

// PermissionsForRole joins role_permissions to the catalog for one role
func (r *roleRepository) PermissionsForRole(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	err := GetDB(ctx, r.db).Raw(`
		SELECT p.id, p.resource, p.action, p.description FROM permissions p
		INNER JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = ?
		ORDER BY p.resource, p.action
	`, roleID).Scan(&perms).Error
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// PermissionsForUser resolves user -> role -> assignments; a user without a role yields none
func (r *roleRepository) PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	err := GetDB(ctx, r.db).Raw(`
		SELECT p.id, p.resource, p.action, p.description FROM permissions p
		INNER JOIN role_permissions rp ON rp.permission_id = p.id
		INNER JOIN users u ON u.role_id = rp.role_id
		WHERE u.id = ?
		ORDER BY p.resource, p.action
	`, userID).Scan(&perms).Error
	if err != nil {
		return nil, err
	}
	return perms, nil
}
