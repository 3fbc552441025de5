package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/audit"
	"compliancehub/internal/metrics"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"
	"compliancehub/pkg/pagination"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// AuditPublisher receives every stored entry, e.g. the live stream hub
type AuditPublisher interface {
	Publish(entry model.AuditLog)
}

// AuditWriter appends audit entries. Writes are best-effort: a failure is logged and
// counted, and the caller's operation carries on.
type AuditWriter struct {
	repo      repository.AuditRepository
	log       *logrus.Logger
	metrics   *metrics.Metrics
	publisher AuditPublisher
}

func NewAuditWriter(repo repository.AuditRepository, log *logrus.Logger, m *metrics.Metrics) *AuditWriter {
	return &AuditWriter{repo: repo, log: log, metrics: m}
}

func (w *AuditWriter) SetPublisher(p AuditPublisher) {
	w.publisher = p
}

// Log stores entry and returns it, or returns nil on any failure. It never panics.
func (w *AuditWriter) Log(ctx context.Context, entry *model.AuditLog) (stored *model.AuditLog) {
	if w == nil || entry == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			w.fail(entry, fmt.Errorf("panic: %v", r))
			stored = nil
		}
	}()

	if meta, ok := RequestMetaFrom(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = meta.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = meta.UserAgent
		}
		if entry.Method == "" {
			entry.Method = meta.Method
		}
		if entry.URL == "" {
			entry.URL = meta.URL
		}
	}
	if entry.Action == "" {
		entry.Action = audit.DeriveAction(entry.Method, entry.URL)
	}
	entry.Action = strings.ToUpper(entry.Action)
	if entry.Resource == "" {
		entry.Resource = audit.DeriveResource(entry.URL)
	}

	if err := w.repo.Create(ctx, entry); err != nil {
		w.fail(entry, err)
		return nil
	}
	w.metrics.AuditWritten()
	if w.publisher != nil {
		w.publisher.Publish(*entry)
	}
	return entry
}

// Record builds an entry for actor and logs it. details is sanitized before storage.
func (w *AuditWriter) Record(ctx context.Context, actor *Identity, action, resource, resourceID string, details any) *model.AuditLog {
	entry := &model.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    DetailsJSON(details),
	}
	if actor != nil {
		id, org := actor.ID, actor.OrganizationID
		entry.UserID = &id
		entry.UserEmail = actor.Email
		entry.UserName = actor.Name
		entry.OrganizationID = &org
	}
	return w.Log(ctx, entry)
}

func (w *AuditWriter) fail(entry *model.AuditLog, err error) {
	w.metrics.AuditFailed()
	if w.log == nil {
		return
	}
	fields := logrus.Fields{
		"action":   entry.Action,
		"resource": entry.Resource,
	}
	if entry.OrganizationID != nil {
		fields["organization_id"] = entry.OrganizationID.String()
	}
	w.log.WithFields(fields).WithError(err).Error("failed to write audit log")
}

// DetailsJSON sanitizes and encodes audit details; unencodable values are dropped
func DetailsJSON(details any) datatypes.JSON {
	if details == nil {
		return nil
	}
	raw, err := json.Marshal(audit.Sanitize(details))
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// --- Query side ---

const maxExportRows = 50000

// AuditQuery is the query string accepted by the audit endpoints
type AuditQuery struct {
	UserID    string `form:"userId" json:"userId,omitempty"`
	Action    string `form:"action" json:"action,omitempty"`
	Resource  string `form:"resource" json:"resource,omitempty"`
	StartDate string `form:"startDate" json:"startDate,omitempty"`
	EndDate   string `form:"endDate" json:"endDate,omitempty"`
	IPAddress string `form:"ipAddress" json:"ipAddress,omitempty"`
	Page      int    `form:"page" json:"-"`
	Limit     int    `form:"limit" json:"-"`
}

type AuditLogListResponse struct {
	Logs       []model.AuditLog `json:"logs"`
	Pagination pagination.Meta  `json:"pagination"`
}

type CleanupRequest struct {
	RetentionDays int `json:"retentionDays" binding:"omitempty,min=1"`
}

type CleanupResult struct {
	Deleted       int64     `json:"deleted"`
	RetentionDays int       `json:"retentionDays"`
	Cutoff        time.Time `json:"cutoff"`
}

type ExportResult struct {
	ContentType string
	Filename    string
	Body        []byte
	Count       int
}

type AuditService interface {
	List(ctx context.Context, actor Identity, q AuditQuery) (*AuditLogListResponse, error)
	Stats(ctx context.Context, actor Identity, q AuditQuery, topN int) (*model.AuditStats, error)
	Export(ctx context.Context, actor Identity, q AuditQuery, format string) (*ExportResult, error)
	Cleanup(ctx context.Context, actor Identity, req CleanupRequest) (*CleanupResult, error)
	// Purge is the operator path: orgID nil sweeps every tenant
	Purge(ctx context.Context, orgID *uuid.UUID, retentionDays int) (*CleanupResult, error)
}

type auditService struct {
	repo          repository.AuditRepository
	writer        *AuditWriter
	retentionDays int
	now           func() time.Time
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository, writer *AuditWriter, retentionDays int) AuditService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &auditService{repo: repo, writer: writer, retentionDays: retentionDays, now: time.Now}
}

// filter always pins the caller's organization; a tenant never sees another tenant's trail
func (s *auditService) filter(actor Identity, q AuditQuery) (model.AuditFilter, error) {
	org := actor.OrganizationID
	f := model.AuditFilter{
		OrganizationID: &org,
		Action:         strings.ToUpper(strings.TrimSpace(q.Action)),
		Resource:       strings.TrimSpace(q.Resource),
		IPAddress:      strings.TrimSpace(q.IPAddress),
	}
	if q.UserID != "" {
		id, err := uuid.Parse(q.UserID)
		if err != nil {
			return f, apperror.Validation("Invalid userId")
		}
		f.UserID = &id
	}
	var err error
	if f.StartDate, err = parseDate(q.StartDate, false); err != nil {
		return f, apperror.Validation("Invalid startDate")
	}
	if f.EndDate, err = parseDate(q.EndDate, true); err != nil {
		return f, apperror.Validation("Invalid endDate")
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, apperror.Validation("endDate must not be before startDate")
	}
	return f, nil
}

// parseDate accepts RFC3339 or a bare date; a bare end date covers the whole day
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (s *auditService) List(ctx context.Context, actor Identity, q AuditQuery) (*AuditLogListResponse, error) {
	f, err := s.filter(actor, q)
	if err != nil {
		return nil, err
	}
	p := pagination.Normalize(q.Page, q.Limit)
	f.Page, f.Limit = p.Page, p.Limit

	logs, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperror.Internal("Failed to fetch audit logs", err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return &AuditLogListResponse{Logs: logs, Pagination: pagination.NewMeta(p, total)}, nil
}

func (s *auditService) Stats(ctx context.Context, actor Identity, q AuditQuery, topN int) (*model.AuditStats, error) {
	f, err := s.filter(actor, q)
	if err != nil {
		return nil, err
	}
	if topN <= 0 || topN > 100 {
		topN = 10
	}
	stats, err := s.repo.Stats(ctx, f, topN)
	if err != nil {
		return nil, apperror.Internal("Failed to compute audit statistics", err)
	}
	return stats, nil
}

func (s *auditService) Export(ctx context.Context, actor Identity, q AuditQuery, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = audit.FormatJSON
	}
	if format != audit.FormatCSV && format != audit.FormatJSON {
		return nil, apperror.Validation("Unsupported export format: use csv or json")
	}

	f, err := s.filter(actor, q)
	if err != nil {
		return nil, err
	}
	f.Page, f.Limit = 1, maxExportRows

	logs, _, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperror.Internal("Failed to export audit logs", err)
	}

	var buf bytes.Buffer
	if format == audit.FormatCSV {
		err = audit.WriteCSV(&buf, logs)
	} else {
		err = audit.WriteJSON(&buf, logs)
	}
	if err != nil {
		return nil, apperror.Internal("Failed to export audit logs", err)
	}

	s.writer.Record(ctx, &actor, model.ActionExportAuditLogs, model.ResourceAudit, "", map[string]any{
		"format": format,
		"count":  len(logs),
		"filter": q,
	})

	return &ExportResult{
		ContentType: audit.ContentType(format),
		Filename:    fmt.Sprintf("audit-logs-%s.%s", s.now().UTC().Format("20060102-150405"), format),
		Body:        buf.Bytes(),
		Count:       len(logs),
	}, nil
}

func (s *auditService) Cleanup(ctx context.Context, actor Identity, req CleanupRequest) (*CleanupResult, error) {
	org := actor.OrganizationID
	res, err := s.purge(ctx, &org, req.RetentionDays)
	if err != nil {
		return nil, err
	}
	s.writer.Record(ctx, &actor, model.ActionAuditCleanup, model.ResourceAudit, "", res)
	return res, nil
}

func (s *auditService) Purge(ctx context.Context, orgID *uuid.UUID, retentionDays int) (*CleanupResult, error) {
	res, err := s.purge(ctx, orgID, retentionDays)
	if err != nil {
		return nil, err
	}
	s.writer.Log(ctx, &model.AuditLog{
		OrganizationID: orgID,
		Action:         model.ActionAuditCleanup,
		Resource:       model.ResourceAudit,
		Details:        DetailsJSON(res),
	})
	return res, nil
}

func (s *auditService) purge(ctx context.Context, orgID *uuid.UUID, days int) (*CleanupResult, error) {
	if days <= 0 {
		days = s.retentionDays
	}
	cutoff := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	deleted, err := s.repo.DeleteOlderThan(ctx, orgID, cutoff)
	if err != nil {
		return nil, apperror.Internal("Failed to clean up audit logs", err)
	}
	return &CleanupResult{Deleted: deleted, RetentionDays: days, Cutoff: cutoff}, nil
}
