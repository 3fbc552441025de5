package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissions_ResolveThroughRole(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")

	role, err := e.roles.CreateRole(ctx, admin, CreateRoleRequest{Name: "viewer", Permissions: []string{"users:read"}})
	require.NoError(t, err)
	v, err := e.users.CreateUser(ctx, admin, CreateUserRequest{
		Email: "v@acme.com", Password: "password123", FirstName: "V", LastName: "W", RoleID: role.ID.String(),
	})
	require.NoError(t, err)
	none, err := e.users.CreateUser(ctx, admin, CreateUserRequest{
		Email: "n@acme.com", Password: "password123", FirstName: "N", LastName: "O",
	})
	require.NoError(t, err)

	perms, err := e.perms.GetUserPermissions(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "users:read", perms[0].Code())

	perms, err = e.perms.GetUserPermissions(ctx, none.ID)
	require.NoError(t, err)
	assert.Empty(t, perms)
	assert.NotNil(t, perms)

	tests := []struct {
		resource, action string
		want             bool
	}{
		{"users", "read", true},
		{"users", "update", false},
		{"user", "read", false},
		{"users", "rea", false},
		{"roles", "read", false},
	}
	for _, tt := range tests {
		got, err := e.perms.HasPermission(ctx, v.ID, tt.resource, tt.action)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s:%s", tt.resource, tt.action)
	}
}

func TestResolveRole_CacheInvalidatedOnUpdate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")
	role, err := e.roles.CreateRole(ctx, admin, CreateRoleRequest{Name: "viewer", Permissions: []string{"users:read"}})
	require.NoError(t, err)

	grant, err := e.perms.ResolveRole(ctx, admin.OrganizationID, &role.ID)
	require.NoError(t, err)
	assert.Equal(t, "viewer", grant.Name)
	assert.False(t, grant.Has("roles:read"))

	_, err = e.roles.UpdateRole(ctx, admin, role.ID.String(), UpdateRoleRequest{Permissions: &[]string{"users:read", "roles:read"}})
	require.NoError(t, err)

	grant, err = e.perms.ResolveRole(ctx, admin.OrganizationID, &role.ID)
	require.NoError(t, err)
	assert.True(t, grant.Has("roles:read"))

	// Another tenant's role id resolves to nothing
	grant, err = e.perms.ResolveRole(ctx, uuid.New(), ptr(uuid.New()))
	require.NoError(t, err)
	assert.Empty(t, grant.Codes)

	grant, err = e.perms.ResolveRole(ctx, admin.OrganizationID, nil)
	require.NoError(t, err)
	assert.False(t, grant.Has("users:read"))
}

type brokenRoles struct{ repository.RoleRepository }

func (brokenRoles) PermissionsForUser(context.Context, uuid.UUID) ([]model.Permission, error) {
	return nil, errors.New("connection refused")
}

func (brokenRoles) GetInOrg(context.Context, uuid.UUID, uuid.UUID) (*model.Role, error) {
	return nil, errors.New("connection refused")
}

func TestPermissions_FailClosed(t *testing.T) {
	svc := NewPermissionService(brokenRoles{}, time.Minute)
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, uuid.New(), "users", "read")
	assert.False(t, ok)
	assert.ErrorIs(t, err, apperror.ErrInternal)

	grant, err := svc.ResolveRole(ctx, uuid.New(), ptr(uuid.New()))
	assert.Nil(t, grant)
	assert.ErrorIs(t, err, apperror.ErrInternal)
}

func TestRoleGrant_NilSafe(t *testing.T) {
	var g *RoleGrant
	assert.False(t, g.Has("users:read"))
}

func TestResolveRole_CacheScopedToOrganization(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")
	_, other := e.register(t, "admin@globex.com", "Globex")
	role, err := e.roles.CreateRole(ctx, admin, CreateRoleRequest{Name: "auditor", Permissions: []string{"audit:read"}})
	require.NoError(t, err)

	grant, err := e.perms.ResolveRole(ctx, admin.OrganizationID, &role.ID)
	require.NoError(t, err)
	assert.True(t, grant.Has("audit:read"))

	// A warm entry for Acme must not answer for Globex
	grant, err = e.perms.ResolveRole(ctx, other.OrganizationID, &role.ID)
	require.NoError(t, err)
	assert.Empty(t, grant.Codes)
	assert.False(t, grant.Has("audit:read"))

	e.perms.Invalidate(other.OrganizationID, role.ID)
	grant, err = e.perms.ResolveRole(ctx, admin.OrganizationID, &role.ID)
	require.NoError(t, err)
	assert.True(t, grant.Has("audit:read"))
}
