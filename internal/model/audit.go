package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionLogin          = "LOGIN"
	ActionLoginFailed    = "LOGIN_FAILED"
	ActionLogout         = "LOGOUT"
	ActionRegister       = "REGISTER"
	ActionPasswordReset  = "PASSWORD_RESET"
	ActionAccessDenied   = "ACCESS_DENIED"
	ActionView           = "VIEW"
	ActionCreate         = "CREATE"
	ActionUpdate         = "UPDATE"
	ActionDelete         = "DELETE"
	ActionBulkOperation  = "BULK_OPERATION"
	ActionExport         = "EXPORT"
	ActionImport         = "IMPORT"
	ActionGenerateReport = "GENERATE_REPORT"

	ActionCreateUser         = "CREATE_USER"
	ActionUpdateUser         = "UPDATE_USER"
	ActionDeleteUser         = "DELETE_USER"
	ActionBulkImportUsers    = "BULK_IMPORT_USERS"
	ActionUpdateProfile      = "UPDATE_PROFILE"
	ActionCreateRole         = "CREATE_ROLE"
	ActionUpdateRole         = "UPDATE_ROLE"
	ActionDeleteRole         = "DELETE_ROLE"
	ActionUpdateOrganization = "UPDATE_ORGANIZATION"
	ActionUpdateSettings     = "UPDATE_SETTINGS"
	ActionUpdateSubscription = "UPDATE_SUBSCRIPTION"
	ActionExportAuditLogs    = "EXPORT_AUDIT_LOGS"
	ActionAuditCleanup       = "AUDIT_RETENTION_CLEANUP"
)

const (
	ResourceUsers         = "users"
	ResourceRoles         = "roles"
	ResourceOrganizations = "organizations"
	ResourceSettings      = "settings"
	ResourceReports       = "reports"
	ResourceAudit         = "audit"
	ResourceAuth          = "auth"
	ResourceSubscriptions = "subscriptions"
	ResourceUnknown       = "unknown"
)

// AuditLog is an append-only compliance record. Actor identity is denormalized so the
// entry survives removal of the user row.
type AuditLog struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         *uuid.UUID     `gorm:"type:uuid;index" json:"userId"` // nil for anonymous/system events
	UserEmail      string         `gorm:"type:varchar(255)" json:"userEmail,omitempty"`
	UserName       string         `gorm:"type:varchar(255)" json:"userName,omitempty"`
	OrganizationID *uuid.UUID     `gorm:"type:uuid;index" json:"organizationId"`
	Action         string         `gorm:"type:varchar(64);not null;index" json:"action"`
	Resource       string         `gorm:"type:varchar(64);not null;index" json:"resource"`
	ResourceID     string         `gorm:"type:varchar(64);index" json:"resourceId,omitempty"`
	IPAddress      string         `gorm:"type:varchar(64);index" json:"ipAddress,omitempty"`
	UserAgent      string         `gorm:"type:text" json:"userAgent,omitempty"`
	Method         string         `gorm:"type:varchar(10)" json:"method,omitempty"`
	URL            string         `gorm:"type:text" json:"url,omitempty"`
	StatusCode     int            `json:"statusCode,omitempty"`
	Details        datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"createdAt"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// AuditFilter narrows audit queries. OrganizationID nil means all tenants (CLI only).
type AuditFilter struct {
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
	Action         string
	Resource       string
	IPAddress      string
	StartDate      *time.Time
	EndDate        *time.Time
	Page           int
	Limit          int
}

// CountEntry is one bucket of an aggregation
type CountEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// AuditStats aggregates audit entries matching a filter
type AuditStats struct {
	Total      int64        `json:"total"`
	ByAction   []CountEntry `json:"byAction"`
	ByResource []CountEntry `json:"byResource"`
	ByDay      []CountEntry `json:"byDay"`
	TopUsers   []CountEntry `json:"topUsers"`
	TopActions []CountEntry `json:"topActions"`
}
