package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	identity *ExternalIdentity
	err      error
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.test/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(context.Context, string) (*ExternalIdentity, error) {
	return f.identity, f.err
}

func TestOAuth_Flow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.register(t, "admin@acme.com", "Acme")

	idp := &fakeProvider{identity: &ExternalIdentity{Subject: "1", Email: "Admin@Acme.com"}}
	svc := NewOAuthService(map[string]OAuthProvider{"google": idp}, e.store.Users(), e.auth, e.writer, "http://app.test")

	_, _, err := svc.Begin("github")
	assert.Equal(t, ErrUnknownProvider, err)

	redirect, state, err := svc.Begin("Google")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(state, "google."))
	assert.Contains(t, redirect, url.QueryEscape(state))

	next, err := svc.Complete(ctx, state, "code")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(next, "http://app.test/auth/callback#"))
	frag, err := url.ParseQuery(strings.SplitN(next, "#", 2)[1])
	require.NoError(t, err)
	id, err := e.auth.VerifyToken(ctx, frag.Get("token"))
	require.NoError(t, err)
	assert.Equal(t, admin.ID, id.ID)

	idp.identity = &ExternalIdentity{Subject: "2", Email: "new@elsewhere.com"}
	next, err = svc.Complete(ctx, state, "code")
	require.NoError(t, err)
	assert.Equal(t, "http://app.test/onboarding?email=new%40elsewhere.com&provider=google", next)
	_, err = e.store.Users().GetByEmail(ctx, "new@elsewhere.com")
	assert.Error(t, err, "unknown identities are not provisioned")

	idp.err = errors.New("invalid_grant")
	_, err = svc.Complete(ctx, state, "code")
	assert.ErrorIs(t, err, apperror.ErrAuthentication)

	_, err = svc.Complete(ctx, "nodot", "code")
	assert.Equal(t, ErrInvalidState, err)

	assert.Equal(t, 1, countAction(e.auditActions(t, admin), model.ActionLogin))
}
