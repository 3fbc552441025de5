package audit

import (
	"net/http"
	"strings"

	"compliancehub/internal/model"
)

var pathActions = []struct {
	fragment string
	action   string
}{
	{"/login", model.ActionLogin},
	{"/bulk", model.ActionBulkOperation},
	{"/export", model.ActionExport},
	{"/import", model.ActionImport},
	{"/reports", model.ActionGenerateReport},
}

var knownResources = map[string]bool{
	model.ResourceUsers:         true,
	model.ResourceRoles:         true,
	model.ResourceOrganizations: true,
	model.ResourceSettings:      true,
	model.ResourceReports:       true,
	model.ResourceAudit:         true,
}

// DeriveAction maps a request to an audit action when the call site supplies none
func DeriveAction(method, path string) string {
	for _, pa := range pathActions {
		if strings.Contains(path, pa.fragment) {
			return pa.action
		}
	}
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return model.ActionView
	case http.MethodPost:
		return model.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return model.ActionUpdate
	case http.MethodDelete:
		return model.ActionDelete
	}
	return strings.ToUpper(method)
}

// DeriveResource returns the first path segment naming a known resource
func DeriveResource(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, seg := range strings.Split(path, "/") {
		if knownResources[seg] {
			return seg
		}
	}
	return model.ResourceUnknown
}
