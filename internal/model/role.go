package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a tenant-scoped bundle of permissions. Its permission set fully determines
// what every assigned user may do.
type Role struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string       `gorm:"type:varchar(100);not null;uniqueIndex:idx_roles_org_name" json:"name"`
	Description    string       `gorm:"type:text" json:"description"`
	OrganizationID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_roles_org_name" json:"organizationId"`
	IsDefault      bool         `gorm:"default:false" json:"isDefault"` // default roles cannot be deleted
	Permissions    []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func (r *Role) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Permission is an immutable, system-defined (resource, action) pair
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Resource    string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_permissions_resource_action" json:"resource"`
	Action      string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_permissions_resource_action" json:"action"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
}

func (p *Permission) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Code is the "resource:action" form used for exact-match checks
func (p Permission) Code() string {
	return PermissionCode(p.Resource, p.Action)
}

func PermissionCode(resource, action string) string {
	return resource + ":" + action
}
