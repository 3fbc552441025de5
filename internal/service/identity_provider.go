package service

import (
	"context"
	"errors"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

var errInvalidCredentials = errors.New("invalid credentials")

// IdentityProvider owns login credentials. User rows reference its accounts by IdentityID.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password, provider string) (*model.Credential, error)
	DeleteAccount(ctx context.Context, cred *model.Credential) error
	Authenticate(ctx context.Context, email, password string) (*model.Credential, error)
	SetPassword(ctx context.Context, cred *model.Credential, password string) error
	Lookup(ctx context.Context, email string) (*model.Credential, error)
}

type localIdentityProvider struct {
	creds repository.CredentialRepository
	cost  int
}

// NewLocalIdentityProvider stores bcrypt hashes through the credential repository
func NewLocalIdentityProvider(creds repository.CredentialRepository, cost int) IdentityProvider {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &localIdentityProvider{creds: creds, cost: cost}
}

func (p *localIdentityProvider) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", apperror.Internal("Failed to hash password", err)
	}
	return string(hashed), nil
}

func (p *localIdentityProvider) CreateAccount(ctx context.Context, email, password, provider string) (*model.Credential, error) {
	if _, err := p.creds.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Validation("Email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Internal("Failed to create account", err)
	}

	cred := &model.Credential{Email: email, Provider: provider}
	if password != "" {
		hashed, err := p.hash(password)
		if err != nil {
			return nil, err
		}
		cred.PasswordHash = hashed
	}
	if err := p.creds.Create(ctx, cred); err != nil {
		return nil, apperror.Internal("Failed to create account", err)
	}
	return cred, nil
}

func (p *localIdentityProvider) DeleteAccount(ctx context.Context, cred *model.Credential) error {
	return p.creds.Delete(ctx, cred.ID)
}

// Authenticate never tells a missing account apart from a wrong password
func (p *localIdentityProvider) Authenticate(ctx context.Context, email, password string) (*model.Credential, error) {
	cred, err := p.creds.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, apperror.Internal("Failed to authenticate", err)
	}
	if cred.PasswordHash == "" {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return cred, nil
}

func (p *localIdentityProvider) SetPassword(ctx context.Context, cred *model.Credential, password string) error {
	hashed, err := p.hash(password)
	if err != nil {
		return err
	}
	if err := p.creds.UpdatePassword(ctx, cred.ID, hashed); err != nil {
		return apperror.Internal("Failed to update password", err)
	}
	cred.PasswordHash = hashed
	return nil
}

func (p *localIdentityProvider) Lookup(ctx context.Context, email string) (*model.Credential, error) {
	cred, err := p.creds.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return cred, nil
}
