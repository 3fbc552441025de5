package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
)

// User is a member of exactly one organization (tenant)
type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	IdentityID     uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"-"` // Credential owned by the identity provider
	Email          string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FirstName      string         `gorm:"type:varchar(100);not null" json:"firstName"`
	LastName       string         `gorm:"type:varchar(100);not null" json:"lastName"`
	JobTitle       string         `gorm:"type:varchar(150)" json:"jobTitle,omitempty"`
	Phone          string         `gorm:"type:varchar(30)" json:"phone,omitempty"`
	Preferences    datatypes.JSON `gorm:"type:jsonb" json:"preferences,omitempty"`
	Status         string         `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	RoleID         *uuid.UUID     `gorm:"type:uuid;index" json:"roleId"` // nil means no permissions
	Role           *Role          `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organizationId"`
	LastLoginAt    *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// IsActive reports whether the account may authenticate
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// FullName is the denormalized actor name stored on audit entries
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ValidUserStatus reports whether s is a known account status
func ValidUserStatus(s string) bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// NormalizeEmail lowercases and trims an email so uniqueness is case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
