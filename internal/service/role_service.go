package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required,max=100"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // "resource:action" codes or permission ids
}

// UpdateRoleRequest changes only the fields present; Permissions replaces the whole set
type UpdateRoleRequest struct {
	Name        *string   `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string   `json:"description"`
	Permissions *[]string `json:"permissions"`
}

type RoleResponse struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	OrganizationID uuid.UUID            `json:"organizationId"`
	IsDefault      bool                 `json:"isDefault"`
	Permissions    []PermissionResponse `json:"permissions"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

type PermissionResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context, actor Identity) ([]RoleResponse, error)
	GetRole(ctx context.Context, actor Identity, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, actor Identity, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, actor Identity, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, actor Identity, id string) error
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	// CreateDefaultRole gives a new tenant its undeletable admin role holding the whole catalog
	CreateDefaultRole(ctx context.Context, orgID uuid.UUID) (*model.Role, error)
}

type roleService struct {
	roles         repository.RoleRepository
	users         repository.UserRepository
	perms         PermissionService
	tx            repository.TransactionManager
	audit         *AuditWriter
	adminRoleName string
}

func NewRoleService(
	roles repository.RoleRepository,
	users repository.UserRepository,
	perms PermissionService,
	tx repository.TransactionManager,
	audit *AuditWriter,
	adminRoleName string,
) RoleService {
	if adminRoleName == "" {
		adminRoleName = "Admin"
	}
	return &roleService{roles: roles, users: users, perms: perms, tx: tx, audit: audit, adminRoleName: adminRoleName}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context, actor Identity) ([]RoleResponse, error) {
	roles, err := s.roles.ListByOrg(ctx, actor.OrganizationID)
	if err != nil {
		return nil, apperror.Internal("Failed to fetch roles", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) load(ctx context.Context, actor Identity, id string) (*model.Role, error) {
	roleID, err := parseID(id, "Role not found")
	if err != nil {
		return nil, err
	}
	role, err := s.roles.GetInOrg(ctx, actor.OrganizationID, roleID)
	if err != nil {
		return nil, notFoundOr(err, "Role not found", "Failed to fetch role")
	}
	return role, nil
}

func (s *roleService) GetRole(ctx context.Context, actor Identity, id string) (*RoleResponse, error) {
	role, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, actor Identity, req CreateRoleRequest) (*RoleResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("Role name is required")
	}
	if err := s.ensureNameFree(ctx, actor.OrganizationID, name, uuid.Nil); err != nil {
		return nil, err
	}

	perms, err := s.resolvePermissions(ctx, req.Permissions)
	if err != nil {
		return nil, err
	}

	role := &model.Role{
		Name:           name,
		Description:    req.Description,
		OrganizationID: actor.OrganizationID,
		Permissions:    perms,
	}
	if err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.roles.Create(txCtx, role)
	}); err != nil {
		return nil, apperror.Internal("Failed to create role", err)
	}

	s.audit.Record(ctx, &actor, model.ActionCreateRole, model.ResourceRoles, role.ID.String(), map[string]any{
		"name":        role.Name,
		"permissions": codes(perms),
	})

	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) UpdateRole(ctx context.Context, actor Identity, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	role, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperror.Validation("Role name is required")
		}
		if !strings.EqualFold(name, role.Name) {
			if err := s.ensureNameFree(ctx, actor.OrganizationID, name, role.ID); err != nil {
				return nil, err
			}
		}
		changes["name"] = name
		role.Name = name
	}
	if req.Description != nil {
		changes["description"] = *req.Description
		role.Description = *req.Description
	}

	var perms []model.Permission
	if req.Permissions != nil {
		if perms, err = s.resolvePermissions(ctx, *req.Permissions); err != nil {
			return nil, err
		}
		changes["permissions"] = codes(perms)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Update(txCtx, role); err != nil {
			return err
		}
		if req.Permissions != nil {
			return s.roles.ReplacePermissions(txCtx, role, perms)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Internal("Failed to update role", err)
	}
	s.perms.Invalidate(role.OrganizationID, role.ID)

	if req.Permissions != nil {
		role.Permissions = perms
	}
	s.audit.Record(ctx, &actor, model.ActionUpdateRole, model.ResourceRoles, role.ID.String(), changes)

	resp := toRoleResponse(*role)
	return &resp, nil
}

// DeleteRole clears the role's assignments and removes the row in one transaction
func (s *roleService) DeleteRole(ctx context.Context, actor Identity, id string) error {
	role, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if role.IsDefault {
		return apperror.Validation("Cannot delete default role")
	}

	assigned, err := s.users.CountByRole(ctx, actor.OrganizationID)
	if err != nil {
		return apperror.Internal("Failed to delete role", err)
	}
	if assigned[role.ID] > 0 {
		return apperror.Validation("Cannot delete role assigned to users")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.ClearPermissions(txCtx, role); err != nil {
			return err
		}
		return s.roles.Delete(txCtx, actor.OrganizationID, role.ID)
	})
	if err != nil {
		return notFoundOr(err, "Role not found", "Failed to delete role")
	}
	s.perms.Invalidate(role.OrganizationID, role.ID)

	s.audit.Record(ctx, &actor, model.ActionDeleteRole, model.ResourceRoles, role.ID.String(), map[string]any{
		"name": role.Name,
	})
	return nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.perms.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) CreateDefaultRole(ctx context.Context, orgID uuid.UUID) (*model.Role, error) {
	perms, err := s.perms.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		if perms, err = s.perms.SeedCatalog(ctx); err != nil {
			return nil, err
		}
	}
	role := &model.Role{
		Name:           s.adminRoleName,
		Description:    "Organization administrator",
		OrganizationID: orgID,
		IsDefault:      true,
		Permissions:    perms,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// --- Helpers ---

func (s *roleService) ensureNameFree(ctx context.Context, orgID uuid.UUID, name string, self uuid.UUID) error {
	existing, err := s.roles.GetByNameInOrg(ctx, orgID, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return apperror.Internal("Failed to check role name", err)
	case existing.ID != self:
		return apperror.Validation("Role name already exists")
	}
	return nil
}

// resolvePermissions maps codes or ids onto catalog rows; an unknown reference is a 400
func (s *roleService) resolvePermissions(ctx context.Context, refs []string) ([]model.Permission, error) {
	if len(refs) == 0 {
		return []model.Permission{}, nil
	}
	catalog, err := s.perms.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	byRef := make(map[string]model.Permission, len(catalog)*2)
	for _, p := range catalog {
		byRef[p.Code()] = p
		byRef[p.ID.String()] = p
	}

	seen := make(map[uuid.UUID]bool, len(refs))
	out := make([]model.Permission, 0, len(refs))
	for _, ref := range refs {
		p, ok := byRef[strings.TrimSpace(ref)]
		if !ok {
			return nil, apperror.Validation("Unknown permission: " + ref)
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		OrganizationID: r.OrganizationID,
		IsDefault:      r.IsDefault,
		Permissions:    perms,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID,
		Code:        p.Code(),
		Resource:    p.Resource,
		Action:      p.Action,
		Description: p.Description,
	}
}
