package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type UpdateOrganizationRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

type OrganizationResponse struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Settings  datatypes.JSON `json:"settings"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type OrganizationService interface {
	Get(ctx context.Context, actor Identity) (*OrganizationResponse, error)
	GetByID(ctx context.Context, actor Identity, id string) (*OrganizationResponse, error)
	Update(ctx context.Context, actor Identity, req UpdateOrganizationRequest) (*OrganizationResponse, error)
	GetSettings(ctx context.Context, actor Identity) (datatypes.JSON, error)
	UpdateSettings(ctx context.Context, actor Identity, settings json.RawMessage) (datatypes.JSON, error)
}

type organizationService struct {
	orgs  repository.OrganizationRepository
	audit *AuditWriter
}

func NewOrganizationService(orgs repository.OrganizationRepository, audit *AuditWriter) OrganizationService {
	return &organizationService{orgs: orgs, audit: audit}
}

func toOrganizationResponse(o *model.Organization) *OrganizationResponse {
	settings := o.Settings
	if len(settings) == 0 {
		settings = datatypes.JSON("{}")
	}
	return &OrganizationResponse{
		ID:        o.ID,
		Name:      o.Name,
		Settings:  settings,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (s *organizationService) own(ctx context.Context, actor Identity) (*model.Organization, error) {
	org, err := s.orgs.GetByID(ctx, actor.OrganizationID)
	if err != nil {
		return nil, notFoundOr(err, "Organization not found", "Failed to fetch organization")
	}
	return org, nil
}

func (s *organizationService) Get(ctx context.Context, actor Identity) (*OrganizationResponse, error) {
	org, err := s.own(ctx, actor)
	if err != nil {
		return nil, err
	}
	return toOrganizationResponse(org), nil
}

// GetByID only ever resolves the caller's own organization
func (s *organizationService) GetByID(ctx context.Context, actor Identity, id string) (*OrganizationResponse, error) {
	orgID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.Validation("Invalid organization id")
	}
	if orgID != actor.OrganizationID {
		return nil, apperror.Authorization("Access denied to this organization")
	}
	return s.Get(ctx, actor)
}

func (s *organizationService) Update(ctx context.Context, actor Identity, req UpdateOrganizationRequest) (*OrganizationResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("Organization name is required")
	}
	org, err := s.own(ctx, actor)
	if err != nil {
		return nil, err
	}

	previous := org.Name
	org.Name = name
	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, apperror.Internal("Failed to update organization", err)
	}

	s.audit.Record(ctx, &actor, model.ActionUpdateOrganization, model.ResourceOrganizations, org.ID.String(), map[string]any{
		"previousName": previous,
		"name":         org.Name,
	})
	return toOrganizationResponse(org), nil
}

func (s *organizationService) GetSettings(ctx context.Context, actor Identity) (datatypes.JSON, error) {
	org, err := s.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	return org.Settings, nil
}

// UpdateSettings replaces the settings document; it must be a JSON object
func (s *organizationService) UpdateSettings(ctx context.Context, actor Identity, settings json.RawMessage) (datatypes.JSON, error) {
	var doc map[string]any
	if err := json.Unmarshal(settings, &doc); err != nil || doc == nil {
		return nil, apperror.Validation("Settings must be a JSON object")
	}
	org, err := s.own(ctx, actor)
	if err != nil {
		return nil, err
	}

	org.Settings = datatypes.JSON(settings)
	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, apperror.Internal("Failed to update settings", err)
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.audit.Record(ctx, &actor, model.ActionUpdateSettings, model.ResourceSettings, org.ID.String(), map[string]any{
		"keys": keys,
	})
	return org.Settings, nil
}
