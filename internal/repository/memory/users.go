package memory

import (
	"context"
	"strings"

	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.Email = model.NormalizeEmail(user.Email)
	for _, u := range r.s.users {
		if u.Email == user.Email || (user.IdentityID != uuid.Nil && u.IdentityID == user.IdentityID) {
			return ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Status == "" {
		user.Status = model.UserStatusActive
	}
	r.s.stamp(&user.CreatedAt, &user.UpdatedAt)
	stored := *user
	stored.Role = nil
	r.s.users = append(r.s.users, stored)
	return nil
}

func (r *userRepo) find(pred func(model.User) bool) (*model.User, error) {
	for _, u := range r.s.users {
		if pred(u) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = model.NormalizeEmail(email)
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r *userRepo) GetInOrg(_ context.Context, orgID, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, err := r.find(func(u model.User) bool { return u.ID == id && u.OrganizationID == orgID })
	if err != nil {
		return nil, err
	}
	u.Role = r.s.roleOf(u.RoleID)
	return u, nil
}

func (r *userRepo) List(_ context.Context, orgID uuid.UUID, f repository.UserFilter) ([]model.User, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []model.User
	for _, u := range r.s.users {
		if u.OrganizationID != orgID {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		if f.RoleID != nil && (u.RoleID == nil || *u.RoleID != *f.RoleID) {
			continue
		}
		if search != "" &&
			!strings.Contains(u.Email, search) &&
			!strings.Contains(strings.ToLower(u.FirstName), search) &&
			!strings.Contains(strings.ToLower(u.LastName), search) {
			continue
		}
		u.Role = r.s.roleOf(u.RoleID)
		matched = append(matched, u)
	}

	total := int64(len(matched))
	return paginate(matched, f.Page, f.Limit), total, nil
}

func (r *userRepo) Update(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.Email = model.NormalizeEmail(user.Email)
	idx := -1
	for i, u := range r.s.users {
		if u.ID == user.ID {
			idx = i
		} else if u.Email == user.Email {
			return ErrDuplicate
		}
	}
	if idx < 0 {
		return repository.ErrNotFound
	}
	r.s.stamp(nil, &user.UpdatedAt)
	stored := *user
	stored.Role = nil
	r.s.users[idx] = stored
	return nil
}

func (r *userRepo) Delete(_ context.Context, orgID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, u := range r.s.users {
		if u.ID == id && u.OrganizationID == orgID {
			r.s.users = append(r.s.users[:i], r.s.users[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *userRepo) CountByStatus(_ context.Context, orgID uuid.UUID) (map[string]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]int64)
	for _, u := range r.s.users {
		if u.OrganizationID == orgID {
			out[u.Status]++
		}
	}
	return out, nil
}

func (r *userRepo) CountByRole(_ context.Context, orgID uuid.UUID) (map[uuid.UUID]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[uuid.UUID]int64)
	for _, u := range r.s.users {
		if u.OrganizationID == orgID && u.RoleID != nil {
			out[*u.RoleID]++
		}
	}
	return out, nil
}

func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
