package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultPermissions is the global catalog seeded at startup
var DefaultPermissions = []model.Permission{
	{Resource: model.ResourceUsers, Action: "read", Description: "View users"},
	{Resource: model.ResourceUsers, Action: "create", Description: "Create and import users"},
	{Resource: model.ResourceUsers, Action: "update", Description: "Edit users"},
	{Resource: model.ResourceUsers, Action: "delete", Description: "Delete users"},
	{Resource: model.ResourceRoles, Action: "read", Description: "View roles"},
	{Resource: model.ResourceRoles, Action: "create", Description: "Create roles"},
	{Resource: model.ResourceRoles, Action: "update", Description: "Edit roles and their permissions"},
	{Resource: model.ResourceRoles, Action: "delete", Description: "Delete roles"},
	{Resource: model.ResourceOrganizations, Action: "read", Description: "View organization"},
	{Resource: model.ResourceOrganizations, Action: "update", Description: "Edit organization"},
	{Resource: model.ResourceSettings, Action: "read", Description: "View settings"},
	{Resource: model.ResourceSettings, Action: "update", Description: "Edit settings"},
	{Resource: model.ResourceReports, Action: "read", Description: "View reports"},
	{Resource: model.ResourceReports, Action: "create", Description: "Generate compliance reports"},
	{Resource: model.ResourceAudit, Action: "read", Description: "View audit logs"},
	{Resource: model.ResourceAudit, Action: "export", Description: "Export audit logs"},
	{Resource: model.ResourceAudit, Action: "delete", Description: "Run audit retention cleanup"},
}

// RoleGrant is what a role allows: its name (for role checks) and exact permission codes
type RoleGrant struct {
	RoleID uuid.UUID
	Name   string
	Codes  []string
}

// Has is an exact match; there are no wildcards or resource hierarchies
func (g *RoleGrant) Has(code string) bool {
	if g == nil {
		return false
	}
	for _, c := range g.Codes {
		if c == code {
			return true
		}
	}
	return false
}

type PermissionService interface {
	GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]model.Permission, error)
	HasPermission(ctx context.Context, userID uuid.UUID, resource, action string) (bool, error)
	// ResolveRole is cached per (organization, role) and backs the authorization middleware.
	// Entries live for the cache TTL; Invalidate only clears this process's copy.
	ResolveRole(ctx context.Context, orgID uuid.UUID, roleID *uuid.UUID) (*RoleGrant, error)
	Invalidate(orgID, roleID uuid.UUID)
	Catalog(ctx context.Context) ([]model.Permission, error)
	SeedCatalog(ctx context.Context) ([]model.Permission, error)
}

type permissionService struct {
	roles repository.RoleRepository
	cache *lru.LRU[roleKey, *RoleGrant]
}

type roleKey struct {
	org  uuid.UUID
	role uuid.UUID
}

func NewPermissionService(roles repository.RoleRepository, ttl time.Duration) PermissionService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &permissionService{
		roles: roles,
		cache: lru.NewLRU[roleKey, *RoleGrant](1024, nil, ttl),
	}
}

// GetUserPermissions returns an empty list for a user without a role. A store error is
// returned as an internal error, never as an empty grant.
func (s *permissionService) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]model.Permission, error) {
	perms, err := s.roles.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("Failed to verify permissions", err)
	}
	if perms == nil {
		perms = []model.Permission{}
	}
	return perms, nil
}

func (s *permissionService) HasPermission(ctx context.Context, userID uuid.UUID, resource, action string) (bool, error) {
	perms, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	want := model.PermissionCode(resource, action)
	for _, p := range perms {
		if p.Code() == want {
			return true, nil
		}
	}
	return false, nil
}

func (s *permissionService) ResolveRole(ctx context.Context, orgID uuid.UUID, roleID *uuid.UUID) (*RoleGrant, error) {
	if roleID == nil {
		return &RoleGrant{}, nil
	}
	key := roleKey{org: orgID, role: *roleID}
	if grant, ok := s.cache.Get(key); ok {
		return grant, nil
	}

	role, err := s.roles.GetInOrg(ctx, orgID, *roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// dangling role reference grants nothing
			return &RoleGrant{}, nil
		}
		return nil, apperror.Internal("Failed to verify permissions", err)
	}

	grant := &RoleGrant{RoleID: role.ID, Name: role.Name, Codes: codes(role.Permissions)}
	s.cache.Add(key, grant)
	return grant, nil
}

func (s *permissionService) Invalidate(orgID, roleID uuid.UUID) {
	s.cache.Remove(roleKey{org: orgID, role: roleID})
}

func (s *permissionService) Catalog(ctx context.Context) ([]model.Permission, error) {
	perms, err := s.roles.ListPermissions(ctx)
	if err != nil {
		return nil, apperror.Internal("Failed to fetch permissions", err)
	}
	return perms, nil
}

// SeedCatalog upserts DefaultPermissions and returns the stored rows
func (s *permissionService) SeedCatalog(ctx context.Context) ([]model.Permission, error) {
	out := make([]model.Permission, 0, len(DefaultPermissions))
	for _, def := range DefaultPermissions {
		p := def
		if err := s.roles.UpsertPermission(ctx, &p); err != nil {
			return nil, apperror.Internal("Failed to seed permission "+p.Code(), err)
		}
		out = append(out, p)
	}
	return out, nil
}

func codes(perms []model.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Code())
	}
	sort.Strings(out)
	return out
}
