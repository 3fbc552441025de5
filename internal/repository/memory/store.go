// Package memory implements the repository interfaces on process memory. It backs the
// test suites and STORE_DRIVER=memory local runs; nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
)

// ErrDuplicate mirrors a unique constraint violation
var ErrDuplicate = errors.New("memory: duplicate key")

// Store holds every table. Repositories returned by its accessors share one lock.
type Store struct {
	mu sync.RWMutex

	orgs        map[uuid.UUID]model.Organization
	users       []model.User
	roles       []model.Role
	rolePerms   map[uuid.UUID][]uuid.UUID
	perms       []model.Permission
	creds       map[uuid.UUID]model.Credential
	resetTokens map[uuid.UUID]model.PasswordResetToken
	audit       []model.AuditLog
	subs        []model.Subscription

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		orgs:        make(map[uuid.UUID]model.Organization),
		rolePerms:   make(map[uuid.UUID][]uuid.UUID),
		creds:       make(map[uuid.UUID]model.Credential),
		resetTokens: make(map[uuid.UUID]model.PasswordResetToken),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() repository.UserRepository                 { return &userRepo{s} }
func (s *Store) Roles() repository.RoleRepository                 { return &roleRepo{s} }
func (s *Store) Organizations() repository.OrganizationRepository { return &orgRepo{s} }
func (s *Store) Audit() repository.AuditRepository                { return &auditRepo{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository { return &subscriptionRepo{s} }
func (s *Store) Credentials() repository.CredentialRepository     { return &credentialRepo{s} }
func (s *Store) TxManager() repository.TransactionManager         { return txManager{} }

// txManager runs fn directly. Writes made before a failing step are not rolled back.
type txManager struct{}

func (txManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now()
	if created != nil && created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

type orgRepo struct{ s *Store }

func (r *orgRepo) Create(_ context.Context, org *model.Organization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if _, ok := r.s.orgs[org.ID]; ok {
		return ErrDuplicate
	}
	r.s.stamp(&org.CreatedAt, &org.UpdatedAt)
	r.s.orgs[org.ID] = *org
	return nil
}

func (r *orgRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	org, ok := r.s.orgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &org, nil
}

func (r *orgRepo) Update(_ context.Context, org *model.Organization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orgs[org.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.stamp(nil, &org.UpdatedAt)
	r.s.orgs[org.ID] = *org
	return nil
}

type subscriptionRepo struct{ s *Store }

func (r *subscriptionRepo) Create(_ context.Context, sub *model.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	r.s.stamp(&sub.CreatedAt, &sub.UpdatedAt)
	r.s.subs = append(r.s.subs, *sub)
	return nil
}

func (r *subscriptionRepo) GetByOrganization(_ context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for i := len(r.s.subs) - 1; i >= 0; i-- {
		if r.s.subs[i].OrganizationID == orgID {
			sub := r.s.subs[i]
			return &sub, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *subscriptionRepo) Update(_ context.Context, sub *model.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.subs {
		if r.s.subs[i].ID == sub.ID {
			r.s.stamp(nil, &sub.UpdatedAt)
			r.s.subs[i] = *sub
			return nil
		}
	}
	return repository.ErrNotFound
}

type credentialRepo struct{ s *Store }

func (r *credentialRepo) Create(_ context.Context, cred *model.Credential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cred.Email = model.NormalizeEmail(cred.Email)
	for _, c := range r.s.creds {
		if c.Email == cred.Email {
			return ErrDuplicate
		}
	}
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	if cred.Provider == "" {
		cred.Provider = "local"
	}
	r.s.stamp(&cred.CreatedAt, &cred.UpdatedAt)
	r.s.creds[cred.ID] = *cred
	return nil
}

func (r *credentialRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.creds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *credentialRepo) GetByEmail(_ context.Context, email string) (*model.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = model.NormalizeEmail(email)
	for _, c := range r.s.creds {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *credentialRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.creds[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.PasswordHash = hash
	r.s.stamp(nil, &c.UpdatedAt)
	r.s.creds[id] = c
	return nil
}

func (r *credentialRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.creds, id)
	return nil
}

func (r *credentialRepo) CreateResetToken(_ context.Context, token *model.PasswordResetToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.resetTokens {
		if t.TokenHash == token.TokenHash {
			return ErrDuplicate
		}
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	r.s.stamp(&token.CreatedAt, nil)
	r.s.resetTokens[token.ID] = *token
	return nil
}

func (r *credentialRepo) GetResetToken(_ context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.resetTokens {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *credentialRepo) MarkResetTokenUsed(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.resetTokens[id]
	if !ok || t.UsedAt != nil {
		return repository.ErrNotFound
	}
	t.UsedAt = &usedAt
	r.s.resetTokens[id] = t
	return nil
}
