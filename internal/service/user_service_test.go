package service

import (
	"context"
	"testing"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser_TenantIsolation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, acme := e.register(t, "admin@acme.com", "Acme")
	_, globex := e.register(t, "admin@globex.com", "Globex")

	u, err := e.users.CreateUser(ctx, acme, CreateUserRequest{
		Email: "v@acme.com", Password: "password123", FirstName: "Val", LastName: "Viewer",
	})
	require.NoError(t, err)
	assert.Nil(t, u.RoleID)
	assert.Equal(t, acme.OrganizationID, u.OrganizationID)

	_, err = e.users.GetUser(ctx, globex, u.ID.String())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = e.users.UpdateUser(ctx, globex, u.ID.String(), UpdateUserRequest{FirstName: ptr("X")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	assert.ErrorIs(t, e.users.DeleteUser(ctx, globex, u.ID.String()), apperror.ErrNotFound)

	list, err := e.users.ListUsers(ctx, globex, ListUsersQuery{})
	require.NoError(t, err)
	require.Len(t, list.Users, 1)
	assert.Equal(t, "admin@globex.com", list.Users[0].Email)
}

func TestCreateUser_RejectsForeignRole(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, acme := e.register(t, "admin@acme.com", "Acme")
	_, globex := e.register(t, "admin@globex.com", "Globex")

	_, err := e.users.CreateUser(ctx, acme, CreateUserRequest{
		Email: "x@acme.com", Password: "password123", FirstName: "X", LastName: "Y", RoleID: globex.RoleID.String(),
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = e.identity.Lookup(ctx, "x@acme.com")
	assert.Error(t, err, "no account is created for a rejected user")
}

func TestListUsers_Filters(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")

	for _, req := range []CreateUserRequest{
		{Email: "jane@acme.com", Password: "password123", FirstName: "Jane", LastName: "Doe"},
		{Email: "john@acme.com", Password: "password123", FirstName: "John", LastName: "Roe", Status: "inactive"},
	} {
		_, err := e.users.CreateUser(ctx, admin, req)
		require.NoError(t, err)
	}

	res, err := e.users.ListUsers(ctx, admin, ListUsersQuery{Search: "jan"})
	require.NoError(t, err)
	require.Len(t, res.Users, 1)
	assert.Equal(t, "jane@acme.com", res.Users[0].Email)

	res, err = e.users.ListUsers(ctx, admin, ListUsersQuery{Status: "inactive"})
	require.NoError(t, err)
	require.Len(t, res.Users, 1)
	assert.Equal(t, "john@acme.com", res.Users[0].Email)

	res, err = e.users.ListUsers(ctx, admin, ListUsersQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Users, 2)
	assert.Equal(t, int64(3), res.Pagination.Total)
	assert.Equal(t, 2, res.Pagination.TotalPages)

	_, err = e.users.ListUsers(ctx, admin, ListUsersQuery{Status: "deleted"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestUpdateUser_SelfCannotEscalate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")

	u, err := e.users.CreateUser(ctx, admin, CreateUserRequest{
		Email: "v@acme.com", Password: "password123", FirstName: "Val", LastName: "Viewer",
	})
	require.NoError(t, err)
	self := Identity{ID: u.ID, Email: u.Email, OrganizationID: admin.OrganizationID}

	updated, err := e.users.UpdateUser(ctx, self, u.ID.String(), UpdateUserRequest{Phone: ptr("555-0100")})
	require.NoError(t, err)
	assert.Equal(t, "555-0100", updated.Phone)

	_, err = e.users.UpdateUser(ctx, self, u.ID.String(), UpdateUserRequest{JobTitle: ptr("Chief Compliance Officer")})
	assert.ErrorIs(t, err, apperror.ErrAuthorization)

	_, err = e.users.UpdateUser(ctx, self, u.ID.String(), UpdateUserRequest{Status: ptr(model.UserStatusSuspended)})
	assert.ErrorIs(t, err, apperror.ErrAuthorization)

	_, err = e.users.UpdateUser(ctx, self, u.ID.String(), UpdateUserRequest{RoleID: ptr(admin.RoleID.String())})
	assert.ErrorIs(t, err, apperror.ErrAuthorization)

	// The admin may assign the role
	updated, err = e.users.UpdateUser(ctx, admin, u.ID.String(), UpdateUserRequest{RoleID: ptr(admin.RoleID.String())})
	require.NoError(t, err)
	assert.Equal(t, admin.RoleID, updated.RoleID)
	assert.Equal(t, "Admin", updated.RoleName)

	updated, err = e.users.UpdateUser(ctx, admin, u.ID.String(), UpdateUserRequest{RoleID: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.RoleID)
}

func TestDeleteUser(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")

	assert.ErrorIs(t, e.users.DeleteUser(ctx, admin, admin.ID.String()), apperror.ErrValidation)

	u, err := e.users.CreateUser(ctx, admin, CreateUserRequest{
		Email: "gone@acme.com", Password: "password123", FirstName: "G", LastName: "One",
	})
	require.NoError(t, err)
	require.NoError(t, e.users.DeleteUser(ctx, admin, u.ID.String()))

	_, err = e.users.GetUser(ctx, admin, u.ID.String())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = e.identity.Lookup(ctx, "gone@acme.com")
	assert.Error(t, err)

	assert.Contains(t, e.auditActions(t, admin), model.ActionDeleteUser)
}

func TestBulkImport_PartialFailure(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")

	res, err := e.users.BulkImport(ctx, admin, BulkImportRequest{Users: []CreateUserRequest{
		{Email: "one@acme.com", Password: "password123", FirstName: "One", LastName: "A"},
		{Email: "not-an-email", Password: "password123", FirstName: "Bad", LastName: "B"},
		{Email: "admin@acme.com", Password: "password123", FirstName: "Dup", LastName: "C"},
		{Email: "two@acme.com", FirstName: "Two", LastName: "D"},
		{Email: "three@acme.com", Password: "password123", FirstName: "", LastName: "E"},
	}})
	require.NoError(t, err)

	require.Len(t, res.Successful, 2)
	assert.Equal(t, "one@acme.com", res.Successful[0].Email)
	assert.Equal(t, "two@acme.com", res.Successful[1].Email)

	require.Len(t, res.Failed, 3)
	assert.Equal(t, "Invalid email address", res.Failed[0].Error)
	assert.Equal(t, "Email already registered", res.Failed[1].Error)
	for _, f := range res.Failed {
		assert.Empty(t, f.Input.Password, "passwords are never echoed back")
	}

	actions := e.auditActions(t, admin)
	assert.Equal(t, 1, countAction(actions, model.ActionBulkImportUsers))
	assert.Zero(t, countAction(actions, model.ActionCreateUser))
}

func TestUpdateProfile_AllowList(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")

	res, err := e.users.UpdateProfile(ctx, admin, map[string]any{
		"firstName":      "Grace",
		"phone":          "+1 555 0100",
		"preferences":    map[string]any{"theme": "dark"},
		"status":         "suspended",
		"roleId":         nil,
		"organizationId": "00000000-0000-0000-0000-000000000000",
		"email":          "evil@x.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "Grace", res.FirstName)
	assert.Equal(t, "+1 555 0100", res.Phone)
	assert.JSONEq(t, `{"theme":"dark"}`, string(res.Preferences))
	assert.Equal(t, model.UserStatusActive, res.Status)
	assert.Equal(t, admin.RoleID, res.RoleID)
	assert.Equal(t, admin.OrganizationID, res.OrganizationID)
	assert.Equal(t, "admin@acme.com", res.Email)

	_, err = e.users.UpdateProfile(ctx, admin, map[string]any{"lastName": 42})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
