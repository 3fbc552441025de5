package repository

import (
	"context"
	"time"

	"compliancehub/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CredentialRepository stores identity provider accounts and password reset tokens
type CredentialRepository interface {
	Create(ctx context.Context, cred *model.Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Credential, error)
	GetByEmail(ctx context.Context, email string) (*model.Credential, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	Delete(ctx context.Context, id uuid.UUID) error

	CreateResetToken(ctx context.Context, token *model.PasswordResetToken) error
	GetResetToken(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(ctx context.Context, cred *model.Credential) error {
	return GetDB(ctx, r.db).Create(cred).Error
}

func (r *credentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Credential, error) {
	var cred model.Credential
	if err := GetDB(ctx, r.db).First(&cred, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &cred, nil
}

func (r *credentialRepository) GetByEmail(ctx context.Context, email string) (*model.Credential, error) {
	var cred model.Credential
	if err := GetDB(ctx, r.db).First(&cred, "email = ?", model.NormalizeEmail(email)).Error; err != nil {
		return nil, translate(err)
	}
	return &cred, nil
}

func (r *credentialRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	res := GetDB(ctx, r.db).Model(&model.Credential{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *credentialRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Credential{}).Error
}

func (r *credentialRepository) CreateResetToken(ctx context.Context, token *model.PasswordResetToken) error {
	return GetDB(ctx, r.db).Create(token).Error
}

func (r *credentialRepository) GetResetToken(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	var token model.PasswordResetToken
	if err := GetDB(ctx, r.db).First(&token, "token_hash = ?", tokenHash).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// MarkResetTokenUsed claims the token; ErrNotFound means it is missing or already used
func (r *credentialRepository) MarkResetTokenUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	res := GetDB(ctx, r.db).Model(&model.PasswordResetToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
