package memory

import (
	"context"
	"sort"
	"time"

	"compliancehub/internal/model"

	"github.com/google/uuid"
)

type auditRepo struct{ s *Store }

func (r *auditRepo) Create(_ context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.s.stamp(&entry.CreatedAt, nil)
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func matches(e model.AuditLog, f model.AuditFilter) bool {
	if f.OrganizationID != nil && (e.OrganizationID == nil || *e.OrganizationID != *f.OrganizationID) {
		return false
	}
	if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	if f.StartDate != nil && e.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

// filtered returns matching entries newest-first. Caller holds the lock.
func (r *auditRepo) filtered(f model.AuditFilter) []model.AuditLog {
	var out []model.AuditLog
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if matches(r.s.audit[i], f) {
			out = append(out, r.s.audit[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *auditRepo) List(_ context.Context, f model.AuditFilter) ([]model.AuditLog, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := r.filtered(f)
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

func (r *auditRepo) Stats(_ context.Context, f model.AuditFilter, topN int) (*model.AuditStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byAction := map[string]int64{}
	byResource := map[string]int64{}
	byDay := map[string]int64{}
	byUser := map[string]int64{}

	entries := r.filtered(f)
	for _, e := range entries {
		byAction[e.Action]++
		byResource[e.Resource]++
		byDay[e.CreatedAt.UTC().Format(time.DateOnly)]++
		if e.UserID != nil {
			key := e.UserEmail
			if key == "" {
				key = e.UserID.String()
			}
			byUser[key]++
		}
	}

	return &model.AuditStats{
		Total:      int64(len(entries)),
		ByAction:   byKey(byAction),
		ByResource: byKey(byResource),
		ByDay:      byKey(byDay),
		TopUsers:   top(byUser, topN),
		TopActions: top(byAction, topN),
	}, nil
}

func (r *auditRepo) DeleteOlderThan(_ context.Context, orgID *uuid.UUID, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.audit[:0]
	var deleted int64
	for _, e := range r.s.audit {
		inScope := orgID == nil || (e.OrganizationID != nil && *e.OrganizationID == *orgID)
		if inScope && e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.audit = kept
	return deleted, nil
}

func byKey(m map[string]int64) []model.CountEntry {
	out := make([]model.CountEntry, 0, len(m))
	for k, v := range m {
		out = append(out, model.CountEntry{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func top(m map[string]int64, n int) []model.CountEntry {
	out := byKey(m)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
