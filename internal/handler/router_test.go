package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"compliancehub/internal/app"
	"compliancehub/internal/cache"
	"compliancehub/internal/config"
	"compliancehub/internal/mailer"
	"compliancehub/internal/middleware"
	"compliancehub/internal/model"
	"compliancehub/internal/repository/memory"
	"compliancehub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	t      *testing.T
	app    *app.App
	outbox *mailer.Outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.FromEnv(func(k string) string {
		if k == "APP_ENV" {
			return config.EnvTest
		}
		return ""
	})
	require.NoError(t, err)
	cfg.Auth.BcryptCost = bcrypt.MinCost

	log, _ := logtest.NewNullLogger()
	outbox := &mailer.Outbox{}
	a := app.New(app.Options{
		Config:   cfg,
		Log:      log,
		Repos:    app.MemoryRepositories(memory.NewStore()),
		Denylist: cache.NewMemoryDenylist(cfg.Auth.RefreshTTL),
		Limiter:  middleware.NewMemoryLimiterStore(1000, time.Hour),
		Mailer:   outbox,
	})
	t.Cleanup(a.Tasks.Wait)
	return &testServer{t: t, app: a, outbox: outbox}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) register(email, org string) service.AuthResponse {
	s.t.Helper()
	w := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email":            email,
		"password":         "password123",
		"firstName":        "Ada",
		"lastName":         "Admin",
		"organizationName": org,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[service.AuthResponse](s.t, w)
}

func (s *testServer) login(email, password string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
}

func (s *testServer) defaultRole(token string) service.RoleResponse {
	s.t.Helper()
	w := s.do(http.MethodGet, "/roles", token, nil)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	for _, r := range decode[[]service.RoleResponse](s.t, w) {
		if r.IsDefault {
			return r
		}
	}
	s.t.Fatal("no default role")
	return service.RoleResponse{}
}

func TestRegisterLoginListUsers(t *testing.T) {
	s := newTestServer(t)
	reg := s.register("admin@acme.test", "Acme")
	assert.NotEmpty(t, reg.RefreshToken)

	w := s.login("ADMIN@acme.test", "password123")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	auth := decode[service.AuthResponse](t, w)

	w = s.do(http.MethodGet, "/users", auth.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[service.UserListResponse](t, w)
	require.Len(t, list.Users, 1)
	assert.Equal(t, "admin@acme.test", list.Users[0].Email)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Access token required"}`, w.Body.String())

	w = s.do(http.MethodGet, "/users", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestViewerCannotReadRoles(t *testing.T) {
	s := newTestServer(t)
	admin := s.register("admin@acme.test", "Acme")

	w := s.do(http.MethodPost, "/roles", admin.Token, service.CreateRoleRequest{
		Name:        "Viewer",
		Permissions: []string{"users:read"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	viewerRole := decode[service.RoleResponse](t, w)

	w = s.do(http.MethodPost, "/users", admin.Token, service.CreateUserRequest{
		Email:     "viewer@acme.test",
		Password:  "password123",
		FirstName: "Vic",
		LastName:  "Viewer",
		RoleID:    viewerRole.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.login("viewer@acme.test", "password123")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	viewer := decode[service.AuthResponse](t, w)

	w = s.do(http.MethodGet, "/users", viewer.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/roles", viewer.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Insufficient permissions"}`, w.Body.String())

	s.app.Tasks.Wait()
	w = s.do(http.MethodGet, "/organizations/audit-logs?action="+model.ActionAccessDenied, admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	logs := decode[service.AuditLogListResponse](t, w)
	require.NotEmpty(t, logs.Logs)
	assert.Equal(t, viewer.User.ID, *logs.Logs[0].UserID)
}

func TestDeleteDefaultRoleIsRejected(t *testing.T) {
	s := newTestServer(t)
	admin := s.register("admin@acme.test", "Acme")
	role := s.defaultRole(admin.Token)

	w := s.do(http.MethodDelete, "/roles/"+role.ID.String(), admin.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Cannot delete default role"}`, w.Body.String())
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t)
	s.register("admin@acme.test", "Acme")

	for i := 0; i < 5; i++ {
		w := s.login("admin@acme.test", "wrong-password")
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
	}
	w := s.login("admin@acme.test", "wrong-password")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too many requests, please try again later"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestOrganizationIsolation(t *testing.T) {
	s := newTestServer(t)
	acme := s.register("admin@acme.test", "Acme")
	globex := s.register("admin@globex.test", "Globex")

	w := s.do(http.MethodGet, "/organizations/"+acme.User.OrganizationID.String(), acme.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/organizations/"+acme.User.OrganizationID.String(), globex.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Access denied to this organization"}`, w.Body.String())

	w = s.do(http.MethodGet, "/organizations/audit-logs?organizationId="+uuid.NewString(), acme.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// another tenant's user id resolves to nothing
	w = s.do(http.MethodGet, "/users/"+globex.User.ID.String(), acme.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelfProfileWithoutUserPermissions(t *testing.T) {
	s := newTestServer(t)
	admin := s.register("admin@acme.test", "Acme")

	w := s.do(http.MethodPost, "/roles", admin.Token, service.CreateRoleRequest{Name: "Nobody"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	role := decode[service.RoleResponse](t, w)

	w = s.do(http.MethodPost, "/users", admin.Token, service.CreateUserRequest{
		Email: "nobody@acme.test", Password: "password123", FirstName: "No", LastName: "Body", RoleID: role.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[service.UserResponse](t, w)

	w = s.login("nobody@acme.test", "password123")
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[service.AuthResponse](t, w).Token

	w = s.do(http.MethodGet, "/users/"+created.ID.String(), token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/users/"+admin.User.ID.String(), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, "/users/me/profile", token, map[string]any{"phone": "555-0100", "email": "evil@x.test"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	profile := decode[service.UserResponse](t, w)
	assert.Equal(t, "555-0100", profile.Phone)
	assert.Equal(t, "nobody@acme.test", profile.Email)
}

func TestRequestAuditRecordsFailures(t *testing.T) {
	s := newTestServer(t)
	admin := s.register("admin@acme.test", "Acme")
	role := s.defaultRole(admin.Token)
	s.do(http.MethodDelete, "/roles/"+role.ID.String(), admin.Token, nil)
	s.app.Tasks.Wait()

	w := s.do(http.MethodGet, "/organizations/audit-logs?resource=roles", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	logs := decode[service.AuditLogListResponse](t, w)

	var found bool
	for _, l := range logs.Logs {
		if l.Method == http.MethodDelete && l.StatusCode == http.StatusBadRequest {
			found = true
			var details map[string]any
			require.NoError(t, json.Unmarshal(l.Details, &details))
			assert.Equal(t, "Cannot delete default role", details["error"])
			assert.Equal(t, role.ID.String(), l.ResourceID)
		}
	}
	assert.True(t, found, "request audit entry for failed delete")
}

func TestAuditExportCSV(t *testing.T) {
	s := newTestServer(t)
	admin := s.register("admin@acme.test", "Acme")
	s.app.Tasks.Wait()

	w := s.do(http.MethodGet, "/organizations/audit-logs/export?format=csv", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.NotEmpty(t, w.Header().Get("X-Total-Count"))
}

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])

	w = s.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Route not found"}`, w.Body.String())
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	s := newTestServer(t)
	admin := s.register("admin@acme.test", "Acme")

	w := s.do(http.MethodPost, "/auth/logout", admin.Token, service.LogoutRequest{RefreshToken: admin.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/auth/refresh", "", service.RefreshRequest{RefreshToken: admin.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSelfUpdateLimitedToProfileFields(t *testing.T) {
	s := newTestServer(t)
	admin := s.register("admin@acme.test", "Acme")

	w := s.do(http.MethodPost, "/roles", admin.Token, service.CreateRoleRequest{Name: "viewer", Permissions: []string{"users:read"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	role := decode[service.RoleResponse](t, w)

	w = s.do(http.MethodPost, "/users", admin.Token, service.CreateUserRequest{
		Email: "v@acme.test", Password: "password123", FirstName: "Val", LastName: "Viewer", RoleID: role.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	v := decode[service.UserResponse](t, w)

	w = s.login("v@acme.test", "password123")
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[service.AuthResponse](t, w).Token

	w = s.do(http.MethodPut, "/users/"+v.ID.String(), token, map[string]string{"jobTitle": "Chief Compliance Officer"})
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = s.do(http.MethodPut, "/users/"+v.ID.String(), token, map[string]string{"lastName": "Vance"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[service.UserResponse](t, w)
	assert.Equal(t, "Vance", updated.LastName)
	assert.Empty(t, updated.JobTitle)
}
