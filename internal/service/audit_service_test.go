package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/audit"
	"compliancehub/internal/metrics"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingAudit struct {
	repository.AuditRepository
	panics bool
}

func (f failingAudit) Create(context.Context, *model.AuditLog) error {
	if f.panics {
		panic("driver bug")
	}
	return errors.New("disk full")
}

func TestAuditWriter_NeverFailsCaller(t *testing.T) {
	for _, panics := range []bool{false, true} {
		log, hook := logtest.NewNullLogger()
		m := metrics.New()
		w := NewAuditWriter(failingAudit{panics: panics}, log, m)

		org := uuid.New()
		var stored *model.AuditLog
		assert.NotPanics(t, func() {
			stored = w.Log(context.Background(), &model.AuditLog{OrganizationID: &org, Action: "create", Resource: "users"})
		})
		assert.Nil(t, stored)

		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
		assert.Equal(t, org.String(), hook.LastEntry().Data["organization_id"])
		assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWrites.WithLabelValues("failed")))
	}

	var nilWriter *AuditWriter
	assert.Nil(t, nilWriter.Log(context.Background(), &model.AuditLog{}))
}

type recordingPublisher struct{ got []model.AuditLog }

func (p *recordingPublisher) Publish(e model.AuditLog) { p.got = append(p.got, e) }

func TestAuditWriter_StampsRequestAndDerives(t *testing.T) {
	e := newTestEnv(t)
	pub := &recordingPublisher{}
	e.writer.SetPublisher(pub)

	ctx := WithRequestMeta(context.Background(), RequestMeta{
		IPAddress: "10.0.0.1", UserAgent: "curl", Method: "DELETE", URL: "/roles/123",
	})
	actor := &Identity{ID: uuid.New(), Email: "a@x.com", OrganizationID: uuid.New()}
	stored := e.writer.Record(ctx, actor, "", "", "123", map[string]any{
		"password": "hunter2",
		"nested":   map[string]any{"apiKey": "k", "ok": 1},
	})
	require.NotNil(t, stored)

	assert.Equal(t, model.ActionDelete, stored.Action)
	assert.Equal(t, model.ResourceRoles, stored.Resource)
	assert.Equal(t, "10.0.0.1", stored.IPAddress)
	assert.Equal(t, "curl", stored.UserAgent)
	assert.JSONEq(t, `{"password":"[REDACTED]","nested":{"apiKey":"[REDACTED]","ok":1}}`, string(stored.Details))

	require.Len(t, pub.got, 1)
	assert.Equal(t, stored.ID, pub.got[0].ID)
}

func seedAudit(t *testing.T, e *testEnv, org uuid.UUID, user uuid.UUID) {
	t.Helper()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []model.AuditLog{
		{Action: model.ActionLogin, Resource: model.ResourceAuth, CreatedAt: base},
		{Action: model.ActionCreateUser, Resource: model.ResourceUsers, CreatedAt: base.Add(time.Hour), IPAddress: "1.1.1.1"},
		{Action: model.ActionCreateUser, Resource: model.ResourceUsers, CreatedAt: base.Add(24 * time.Hour)},
		{Action: model.ActionAccessDenied, Resource: model.ResourceRoles, CreatedAt: base.Add(48 * time.Hour)},
	}
	for i := range entries {
		entries[i].OrganizationID = &org
		entries[i].UserID = &user
		entries[i].UserEmail = "admin@acme.com"
		require.NoError(t, e.store.Audit().Create(context.Background(), &entries[i]))
	}
}

func TestAuditService_ListFilters(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	actor := Identity{ID: uuid.New(), OrganizationID: uuid.New()}
	seedAudit(t, e, actor.OrganizationID, actor.ID)
	seedAudit(t, e, uuid.New(), uuid.New())

	res, err := e.audits.List(ctx, actor, AuditQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Pagination.Total)
	assert.Equal(t, model.ActionAccessDenied, res.Logs[0].Action, "newest first")

	res, err = e.audits.List(ctx, actor, AuditQuery{Action: "create_user"})
	require.NoError(t, err)
	assert.Len(t, res.Logs, 2)

	res, err = e.audits.List(ctx, actor, AuditQuery{StartDate: "2025-03-01", EndDate: "2025-03-01"})
	require.NoError(t, err)
	assert.Len(t, res.Logs, 2, "a bare end date covers the whole day")

	res, err = e.audits.List(ctx, actor, AuditQuery{IPAddress: "1.1.1.1"})
	require.NoError(t, err)
	assert.Len(t, res.Logs, 1)

	_, err = e.audits.List(ctx, actor, AuditQuery{StartDate: "yesterday"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = e.audits.List(ctx, actor, AuditQuery{StartDate: "2025-03-05", EndDate: "2025-03-01"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestAuditService_Stats(t *testing.T) {
	e := newTestEnv(t)
	actor := Identity{ID: uuid.New(), OrganizationID: uuid.New()}
	seedAudit(t, e, actor.OrganizationID, actor.ID)

	stats, err := e.audits.Stats(context.Background(), actor, AuditQuery{}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Contains(t, stats.ByAction, model.CountEntry{Key: model.ActionCreateUser, Count: 2})
	assert.Len(t, stats.ByDay, 3)
	require.NotEmpty(t, stats.TopActions)
	assert.Equal(t, model.ActionCreateUser, stats.TopActions[0].Key)
}

func TestAuditService_Export(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	actor := Identity{ID: uuid.New(), Email: "admin@acme.com", OrganizationID: uuid.New()}
	seedAudit(t, e, actor.OrganizationID, actor.ID)

	res, err := e.audits.Export(ctx, actor, AuditQuery{}, "CSV")
	require.NoError(t, err)
	assert.Equal(t, audit.ContentType(audit.FormatCSV), res.ContentType)
	assert.True(t, strings.HasSuffix(res.Filename, ".csv"))
	rows, err := csv.NewReader(strings.NewReader(string(res.Body))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, "id", rows[0][0])

	res, err = e.audits.Export(ctx, actor, AuditQuery{Resource: "users"}, "")
	require.NoError(t, err)
	var logs []model.AuditLog
	require.NoError(t, json.Unmarshal(res.Body, &logs))
	assert.Len(t, logs, 2)

	_, err = e.audits.Export(ctx, actor, AuditQuery{}, "xml")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	list, err := e.audits.List(ctx, actor, AuditQuery{Action: model.ActionExportAuditLogs})
	require.NoError(t, err)
	assert.Len(t, list.Logs, 2)
}

func TestAuditService_Cleanup(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	actor := Identity{ID: uuid.New(), OrganizationID: uuid.New()}
	other := uuid.New()
	seedAudit(t, e, actor.OrganizationID, actor.ID)
	seedAudit(t, e, other, uuid.New())

	svc := e.audits.(*auditService)
	svc.now = func() time.Time { return time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC) }

	res, err := svc.Cleanup(ctx, actor, CleanupRequest{RetentionDays: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Deleted)
	assert.Equal(t, 1, res.RetentionDays)

	list, err := svc.List(ctx, actor, AuditQuery{})
	require.NoError(t, err)
	require.Len(t, list.Logs, 2)
	assert.Equal(t, model.ActionAuditCleanup, list.Logs[0].Action)

	// The other tenant is untouched
	otherList, err := svc.List(ctx, Identity{OrganizationID: other}, AuditQuery{})
	require.NoError(t, err)
	assert.Len(t, otherList.Logs, 4)

	res, err = svc.Purge(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Deleted)
}
