package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_CreatesTenant(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	resp, actor := e.register(t, "Admin@Acme.com", "Acme")
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "admin@acme.com", resp.User.Email)
	require.NotNil(t, resp.User.RoleID)
	assert.Equal(t, "Admin", resp.User.RoleName)

	org, err := e.orgs.Get(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)

	role, err := e.roles.GetRole(ctx, actor, resp.User.RoleID.String())
	require.NoError(t, err)
	assert.True(t, role.IsDefault)
	assert.Len(t, role.Permissions, len(DefaultPermissions))

	sub, err := e.billing.GetSubscription(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPending, sub.Status)
	assert.Equal(t, "49", sub.Price.String())

	assert.Contains(t, e.auditActions(t, actor), model.ActionRegister)
}

func TestRegister_Validation(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "admin@acme.com", "Acme")

	tests := []struct {
		name string
		req  RegisterRequest
		msg  string
	}{
		{"duplicate email", RegisterRequest{Email: "ADMIN@acme.com", Password: "password123", FirstName: "A", LastName: "B", OrganizationName: "X"}, "Email already registered"},
		{"bad email", RegisterRequest{Email: "nope", Password: "password123", FirstName: "A", LastName: "B", OrganizationName: "X"}, "Invalid email address"},
		{"short password", RegisterRequest{Email: "b@x.com", Password: "short", FirstName: "A", LastName: "B", OrganizationName: "X"}, "Password must be at least 8 characters"},
		{"missing organization", RegisterRequest{Email: "b@x.com", Password: "password123", FirstName: "A", LastName: "B"}, "Missing required fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.auth.Register(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.msg, apperror.PublicMessage(err, false))
		})
	}
}

type failingTx struct{ err error }

func (f failingTx) RunInTx(context.Context, func(context.Context) error) error { return f.err }

func TestRegister_RollsBackAccountOnFailure(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	svc := e.auth.(*authService)
	svc.Tx = failingTx{err: errors.New("connection reset")}

	_, err := e.auth.Register(ctx, RegisterRequest{
		Email: "new@x.com", Password: "password123", FirstName: "A", LastName: "B", OrganizationName: "X",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInternal)
	assert.Equal(t, "Failed to complete registration", apperror.PublicMessage(err, false))

	_, err = e.identity.Lookup(ctx, "new@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound, "no orphaned identity account")
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, actor := e.register(t, "admin@acme.com", "Acme")

	resp, err := e.auth.Login(ctx, LoginRequest{Email: " ADMIN@acme.com ", Password: "password123"})
	require.NoError(t, err)
	assert.NotNil(t, resp.User.LastLoginAt)

	_, err = e.auth.Login(ctx, LoginRequest{Email: "admin@acme.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, apperror.ErrAuthentication)
	assert.Equal(t, "Invalid email or password", apperror.PublicMessage(err, false))

	_, err = e.auth.Login(ctx, LoginRequest{Email: "ghost@acme.com", Password: "password123"})
	assert.Equal(t, "Invalid email or password", apperror.PublicMessage(err, false))

	actions := e.auditActions(t, actor)
	assert.Equal(t, 1, countAction(actions, model.ActionLogin))
	// The unknown address has no organization to attribute the failure to
	assert.Equal(t, 1, countAction(actions, model.ActionLoginFailed))
}

func TestLogin_InactiveAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")

	created, err := e.users.CreateUser(ctx, admin, CreateUserRequest{
		Email: "sam@acme.com", Password: "password123", FirstName: "Sam", LastName: "Lee", Status: model.UserStatusSuspended,
	})
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusSuspended, created.Status)

	_, err = e.auth.Login(ctx, LoginRequest{Email: "sam@acme.com", Password: "password123"})
	assert.ErrorIs(t, err, apperror.ErrAuthorization)
}

func TestVerifyToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	resp, admin := e.register(t, "admin@acme.com", "Acme")

	assert.Equal(t, "admin@acme.com", admin.Email)
	assert.Equal(t, "Ada Admin", admin.Name)
	assert.NotEmpty(t, admin.TokenID)
	assert.Equal(t, resp.User.RoleID, admin.RoleID)

	_, err := e.auth.VerifyToken(ctx, "garbage")
	assert.Equal(t, ErrInvalidToken, err)

	// A refresh token is not an access token
	_, err = e.auth.VerifyToken(ctx, resp.RefreshToken)
	assert.Equal(t, ErrInvalidToken, err)

	// Deactivation takes effect on the next request
	user, err := e.store.Users().GetByID(ctx, admin.ID)
	require.NoError(t, err)
	user.Status = model.UserStatusInactive
	require.NoError(t, e.store.Users().Update(ctx, user))
	_, err = e.auth.VerifyToken(ctx, resp.Token)
	assert.Equal(t, ErrUnauthorized, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.register(t, "admin@acme.com", "Acme")

	e.tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := e.auth.VerifyToken(context.Background(), resp.Token)
	assert.Equal(t, ErrTokenExpired, err)
}

func TestLogout_RevokesTokens(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	resp, admin := e.register(t, "admin@acme.com", "Acme")

	require.NoError(t, e.auth.Logout(ctx, admin, resp.RefreshToken))

	_, err := e.auth.VerifyToken(ctx, resp.Token)
	assert.Equal(t, ErrTokenRevoked, err)
	_, err = e.auth.Refresh(ctx, resp.RefreshToken)
	assert.Equal(t, ErrTokenRevoked, err)
	assert.Contains(t, e.auditActions(t, admin), model.ActionLogout)
}

func TestRefresh_Rotates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	resp, _ := e.register(t, "admin@acme.com", "Acme")

	next, err := e.auth.Refresh(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, next.RefreshToken)

	_, err = e.auth.Refresh(ctx, resp.RefreshToken)
	assert.Equal(t, ErrTokenRevoked, err, "a rotated refresh token is spent")

	_, err = e.auth.Refresh(ctx, next.Token)
	assert.Equal(t, ErrInvalidToken, err, "access tokens cannot refresh")
}

func TestPasswordReset(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, "admin@acme.com", "Acme")

	require.NoError(t, e.auth.ForgotPassword(ctx, "nobody@acme.com"))
	assert.Empty(t, e.outbox.Sent())

	require.NoError(t, e.auth.ForgotPassword(ctx, "ADMIN@acme.com"))
	sent := e.outbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "admin@acme.com", sent[0].To)

	idx := strings.Index(sent[0].Body, "http://app.test/reset-password?token=")
	require.GreaterOrEqual(t, idx, 0)
	link, err := url.Parse(strings.TrimSpace(sent[0].Body[idx:]))
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	err = e.auth.ResetPassword(ctx, ResetPasswordRequest{Token: "bogus", Password: "new-password"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, e.auth.ResetPassword(ctx, ResetPasswordRequest{Token: token, Password: "new-password"}))
	err = e.auth.ResetPassword(ctx, ResetPasswordRequest{Token: token, Password: "other-password"})
	assert.ErrorIs(t, err, apperror.ErrValidation, "reset tokens are single use")

	_, err = e.auth.Login(ctx, LoginRequest{Email: "admin@acme.com", Password: "password123"})
	assert.Error(t, err)
	_, err = e.auth.Login(ctx, LoginRequest{Email: "admin@acme.com", Password: "new-password"})
	assert.NoError(t, err)
}

func TestPasswordReset_Expired(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, "admin@acme.com", "Acme")
	require.NoError(t, e.auth.ForgotPassword(ctx, "admin@acme.com"))

	body := e.outbox.Sent()[0].Body
	token := body[strings.Index(body, "token=")+len("token="):]

	svc := e.auth.(*authService)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, Password: "new-password"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestMe(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.register(t, "admin@acme.com", "Acme")

	me, err := e.auth.Me(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, "Admin", me.Role)
	assert.Contains(t, me.Permissions, "users:read")
	assert.Contains(t, me.Permissions, "audit:delete")
}
