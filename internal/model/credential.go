package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Credential is the identity provider's account record. Users reference it by IdentityID.
type Credential struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255)" json:"-"`
	Provider     string    `gorm:"type:varchar(50);not null;default:'local'" json:"provider"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (c *Credential) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Email = NormalizeEmail(c.Email)
	return nil
}

// PasswordResetToken is single use; only the sha256 of the token is stored
type PasswordResetToken struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	IdentityID uuid.UUID  `gorm:"type:uuid;not null;index" json:"-"`
	TokenHash  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expiresAt"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (t *PasswordResetToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
