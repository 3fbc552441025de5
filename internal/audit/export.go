package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"compliancehub/internal/model"

	"github.com/google/uuid"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var csvHeader = []string{
	"id", "timestamp", "user_id", "user_email", "user_name", "organization_id",
	"action", "resource", "resource_id", "ip_address", "user_agent",
	"method", "url", "status_code", "details",
}

// WriteCSV writes one header row followed by one row per entry
func WriteCSV(w io.Writer, logs []model.AuditLog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, l := range logs {
		status := ""
		if l.StatusCode != 0 {
			status = strconv.Itoa(l.StatusCode)
		}
		row := []string{
			l.ID.String(),
			l.CreatedAt.UTC().Format(time.RFC3339),
			uuidString(l.UserID),
			l.UserEmail,
			l.UserName,
			uuidString(l.OrganizationID),
			l.Action,
			l.Resource,
			l.ResourceID,
			l.IPAddress,
			l.UserAgent,
			l.Method,
			l.URL,
			status,
			string(l.Details),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes entries as an indented JSON array
func WriteJSON(w io.Writer, logs []model.AuditLog) error {
	if logs == nil {
		logs = []model.AuditLog{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(logs)
}

// ContentType returns the response media type of an export format
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
