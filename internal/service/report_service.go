package service

import (
	"context"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
)

const defaultReportWindow = 30 * 24 * time.Hour

type ComplianceReportRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type RoleAssignment struct {
	RoleID    uuid.UUID `json:"roleId"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"isDefault"`
	Users     int64     `json:"users"`
}

type UserSummary struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
	NoRole   int64            `json:"withoutRole"`
}

type RoleSummary struct {
	Total       int              `json:"total"`
	Assignments []RoleAssignment `json:"assignments"`
}

type ActivitySummary struct {
	Total        int64              `json:"total"`
	ByAction     []model.CountEntry `json:"byAction"`
	TopUsers     []model.CountEntry `json:"topUsers"`
	FailedLogins int64              `json:"failedLogins"`
	AccessDenied int64              `json:"accessDenied"`
}

// ComplianceReport is the access-review snapshot of one organization
type ComplianceReport struct {
	OrganizationID uuid.UUID       `json:"organizationId"`
	GeneratedAt    time.Time       `json:"generatedAt"`
	Period         ReportPeriod    `json:"period"`
	Users          UserSummary     `json:"users"`
	Roles          RoleSummary     `json:"roles"`
	Activity       ActivitySummary `json:"activity"`
}

type ReportService interface {
	Compliance(ctx context.Context, actor Identity, req ComplianceReportRequest) (*ComplianceReport, error)
}

type reportService struct {
	users repository.UserRepository
	roles repository.RoleRepository
	logs  repository.AuditRepository
	audit *AuditWriter
	now   func() time.Time
}

func NewReportService(users repository.UserRepository, roles repository.RoleRepository, logs repository.AuditRepository, audit *AuditWriter) ReportService {
	return &reportService{users: users, roles: roles, logs: logs, audit: audit, now: time.Now}
}

func (s *reportService) period(req ComplianceReportRequest) (ReportPeriod, error) {
	end := s.now().UTC()
	start := end.Add(-defaultReportWindow)
	if t, err := parseDate(req.StartDate, false); err != nil {
		return ReportPeriod{}, apperror.Validation("Invalid startDate")
	} else if t != nil {
		start = *t
	}
	if t, err := parseDate(req.EndDate, true); err != nil {
		return ReportPeriod{}, apperror.Validation("Invalid endDate")
	} else if t != nil {
		end = *t
	}
	if end.Before(start) {
		return ReportPeriod{}, apperror.Validation("endDate must not be before startDate")
	}
	return ReportPeriod{Start: start, End: end}, nil
}

func (s *reportService) Compliance(ctx context.Context, actor Identity, req ComplianceReportRequest) (*ComplianceReport, error) {
	period, err := s.period(req)
	if err != nil {
		return nil, err
	}
	org := actor.OrganizationID

	byStatus, err := s.users.CountByStatus(ctx, org)
	if err != nil {
		return nil, apperror.Internal("Failed to generate report", err)
	}
	byRole, err := s.users.CountByRole(ctx, org)
	if err != nil {
		return nil, apperror.Internal("Failed to generate report", err)
	}
	roles, err := s.roles.ListByOrg(ctx, org)
	if err != nil {
		return nil, apperror.Internal("Failed to generate report", err)
	}
	stats, err := s.logs.Stats(ctx, model.AuditFilter{
		OrganizationID: &org,
		StartDate:      &period.Start,
		EndDate:        &period.End,
	}, 10)
	if err != nil {
		return nil, apperror.Internal("Failed to generate report", err)
	}

	report := &ComplianceReport{
		OrganizationID: org,
		GeneratedAt:    s.now().UTC(),
		Period:         period,
		Users:          UserSummary{ByStatus: byStatus},
		Roles:          RoleSummary{Total: len(roles), Assignments: make([]RoleAssignment, 0, len(roles))},
		Activity: ActivitySummary{
			Total:    stats.Total,
			ByAction: stats.ByAction,
			TopUsers: stats.TopUsers,
		},
	}

	var assigned int64
	for _, n := range byStatus {
		report.Users.Total += n
	}
	for _, r := range roles {
		assigned += byRole[r.ID]
		report.Roles.Assignments = append(report.Roles.Assignments, RoleAssignment{
			RoleID:    r.ID,
			Name:      r.Name,
			IsDefault: r.IsDefault,
			Users:     byRole[r.ID],
		})
	}
	report.Users.NoRole = report.Users.Total - assigned

	for _, e := range stats.ByAction {
		switch e.Key {
		case model.ActionLoginFailed:
			report.Activity.FailedLogins = e.Count
		case model.ActionAccessDenied:
			report.Activity.AccessDenied = e.Count
		}
	}

	s.audit.Record(ctx, &actor, model.ActionGenerateReport, model.ResourceReports, "", map[string]any{
		"type":  "compliance",
		"start": period.Start,
		"end":   period.End,
	})
	return report, nil
}
