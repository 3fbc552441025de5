package service

import (
	"context"
	"testing"
	"time"

	"compliancehub/internal/cache"
	"compliancehub/internal/config"
	"compliancehub/internal/mailer"
	"compliancehub/internal/metrics"
	"compliancehub/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testAuthConfig = config.AuthConfig{
	AccessSecret:  []byte("access-secret"),
	RefreshSecret: []byte("refresh-secret"),
	AccessTTL:     time.Hour,
	RefreshTTL:    7 * 24 * time.Hour,
	Issuer:        "compliancehub-test",
	AdminRoleName: "Admin",
	ResetTokenTTL: time.Hour,
	BcryptCost:    bcrypt.MinCost,
}

type testEnv struct {
	store    *memory.Store
	log      *logrus.Logger
	hook     *logtest.Hook
	outbox   *mailer.Outbox
	tokens   *TokenManager
	denylist *cache.MemoryDenylist
	identity IdentityProvider
	writer   *AuditWriter
	perms    PermissionService
	roles    RoleService
	users    UserService
	auth     AuthService
	orgs     OrganizationService
	billing  BillingService
	reports  ReportService
	audits   AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	e := &testEnv{
		store:    memory.NewStore(),
		log:      log,
		hook:     hook,
		outbox:   &mailer.Outbox{},
		tokens:   NewTokenManager(testAuthConfig),
		denylist: cache.NewMemoryDenylist(testAuthConfig.RefreshTTL),
	}
	m := metrics.New()
	e.identity = NewLocalIdentityProvider(e.store.Credentials(), bcrypt.MinCost)
	e.writer = NewAuditWriter(e.store.Audit(), log, m)
	e.perms = NewPermissionService(e.store.Roles(), time.Minute)
	e.roles = NewRoleService(e.store.Roles(), e.store.Users(), e.perms, e.store.TxManager(), e.writer, "Admin")
	e.users = NewUserService(e.store.Users(), e.store.Roles(), e.identity, e.perms, e.writer)
	e.orgs = NewOrganizationService(e.store.Organizations(), e.writer)
	e.billing = NewBillingService(e.store.Subscriptions(), e.writer, config.BillingConfig{
		WebhookSecret:    "whsec",
		DefaultPlanName:  "starter",
		DefaultPlanPrice: decimal.RequireFromString("49.00"),
		Currency:         "USD",
	})
	e.reports = NewReportService(e.store.Users(), e.store.Roles(), e.store.Audit(), e.writer)
	e.audits = NewAuditService(e.store.Audit(), e.writer, 90)
	e.auth = NewAuthService(AuthDeps{
		Users:       e.store.Users(),
		Orgs:        e.store.Organizations(),
		Creds:       e.store.Credentials(),
		Tx:          e.store.TxManager(),
		Identity:    e.identity,
		Roles:       e.roles,
		Billing:     e.billing,
		Perms:       e.perms,
		Tokens:      e.tokens,
		Denylist:    e.denylist,
		Audit:       e.writer,
		Mailer:      e.outbox,
		Log:         log,
		Metrics:     m,
		FrontendURL: "http://app.test",
		ResetTTL:    time.Hour,
	})
	return e
}

// register signs up a fresh organization and returns its admin identity
func (e *testEnv) register(t *testing.T, email, org string) (*AuthResponse, Identity) {
	t.Helper()
	resp, err := e.auth.Register(context.Background(), RegisterRequest{
		Email:            email,
		Password:         "password123",
		FirstName:        "Ada",
		LastName:         "Admin",
		OrganizationName: org,
	})
	require.NoError(t, err)
	id, err := e.auth.VerifyToken(context.Background(), resp.Token)
	require.NoError(t, err)
	return resp, *id
}

// auditActions lists the stored actions of org, newest first
func (e *testEnv) auditActions(t *testing.T, actor Identity) []string {
	t.Helper()
	res, err := e.audits.List(context.Background(), actor, AuditQuery{Limit: 100})
	require.NoError(t, err)
	out := make([]string, 0, len(res.Logs))
	for _, l := range res.Logs {
		out = append(out, l.Action)
	}
	return out
}

func countAction(actions []string, action string) int {
	n := 0
	for _, a := range actions {
		if a == action {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T { return &v }
