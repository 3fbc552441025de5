package memory

import (
	"context"
	"sort"
	"strings"

	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
)

type roleRepo struct{ s *Store }

// roleOf resolves a user's role without its permissions, like Preload("Role"). Caller holds the lock.
func (s *Store) roleOf(id *uuid.UUID) *model.Role {
	if id == nil {
		return nil
	}
	for _, role := range s.roles {
		if role.ID == *id {
			role.Permissions = nil
			return &role
		}
	}
	return nil
}

func (s *Store) permissionsOf(roleID uuid.UUID) []model.Permission {
	ids := s.rolePerms[roleID]
	out := make([]model.Permission, 0, len(ids))
	for _, p := range s.perms {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out
}

func (s *Store) setPermissions(roleID uuid.UUID, perms []model.Permission) error {
	ids := make([]uuid.UUID, 0, len(perms))
	for _, p := range perms {
		known := false
		for _, existing := range s.perms {
			if existing.ID == p.ID {
				known = true
				break
			}
		}
		if !known {
			return repository.ErrNotFound
		}
		ids = append(ids, p.ID)
	}
	s.rolePerms[roleID] = ids
	return nil
}

func (r *roleRepo) Create(_ context.Context, role *model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if existing.OrganizationID == role.OrganizationID && strings.EqualFold(existing.Name, role.Name) {
			return ErrDuplicate
		}
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	if err := r.s.setPermissions(role.ID, role.Permissions); err != nil {
		return err
	}
	r.s.stamp(&role.CreatedAt, &role.UpdatedAt)
	stored := *role
	stored.Permissions = nil
	r.s.roles = append(r.s.roles, stored)
	return nil
}

func (r *roleRepo) Update(_ context.Context, role *model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	idx := -1
	for i, existing := range r.s.roles {
		if existing.ID == role.ID {
			idx = i
		} else if existing.OrganizationID == role.OrganizationID && strings.EqualFold(existing.Name, role.Name) {
			return ErrDuplicate
		}
	}
	if idx < 0 {
		return repository.ErrNotFound
	}
	r.s.stamp(nil, &role.UpdatedAt)
	stored := *role
	stored.Permissions = nil
	r.s.roles[idx] = stored
	return nil
}

func (r *roleRepo) Delete(_ context.Context, orgID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, role := range r.s.roles {
		if role.ID == id && role.OrganizationID == orgID {
			r.s.roles = append(r.s.roles[:i], r.s.roles[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *roleRepo) get(pred func(model.Role) bool) (*model.Role, error) {
	for _, role := range r.s.roles {
		if pred(role) {
			role.Permissions = r.s.permissionsOf(role.ID)
			return &role, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *roleRepo) GetInOrg(_ context.Context, orgID, id uuid.UUID) (*model.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.get(func(role model.Role) bool { return role.ID == id && role.OrganizationID == orgID })
}

func (r *roleRepo) GetByNameInOrg(_ context.Context, orgID uuid.UUID, name string) (*model.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	name = strings.TrimSpace(name)
	return r.get(func(role model.Role) bool {
		return role.OrganizationID == orgID && strings.EqualFold(role.Name, name)
	})
}

func (r *roleRepo) ListByOrg(_ context.Context, orgID uuid.UUID) ([]model.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Role
	for _, role := range r.s.roles {
		if role.OrganizationID == orgID {
			role.Permissions = r.s.permissionsOf(role.ID)
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *roleRepo) ReplacePermissions(_ context.Context, role *model.Role, perms []model.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.setPermissions(role.ID, perms)
}

func (r *roleRepo) ClearPermissions(_ context.Context, role *model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.rolePerms, role.ID)
	return nil
}

func (r *roleRepo) ListPermissions(_ context.Context) ([]model.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]model.Permission(nil), r.s.perms...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out, nil
}

func (r *roleRepo) UpsertPermission(_ context.Context, perm *model.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.perms {
		if p.Resource == perm.Resource && p.Action == perm.Action {
			*perm = p
			return nil
		}
	}
	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	r.s.perms = append(r.s.perms, *perm)
	return nil
}

func (r *roleRepo) PermissionsForRole(_ context.Context, roleID uuid.UUID) ([]model.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.permissionsOf(roleID), nil
}

func (r *roleRepo) PermissionsForUser(_ context.Context, userID uuid.UUID) ([]model.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.ID == userID {
			if u.RoleID == nil {
				return []model.Permission{}, nil
			}
			return r.s.permissionsOf(*u.RoleID), nil
		}
	}
	return []model.Permission{}, nil
}
