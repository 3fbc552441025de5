package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"
	"compliancehub/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const minPasswordLength = 8

// DTOs for Request validation
type CreateUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password,omitempty" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	JobTitle  string `json:"jobTitle,omitempty"`
	Phone     string `json:"phone,omitempty"`
	RoleID    string `json:"roleId,omitempty"`
	Status    string `json:"status,omitempty"`
}

// UpdateUserRequest changes only the fields present
type UpdateUserRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,min=1"`
	LastName  *string `json:"lastName" binding:"omitempty,min=1"`
	JobTitle  *string `json:"jobTitle"`
	Phone     *string `json:"phone"`
	Status    *string `json:"status"`
	RoleID    *string `json:"roleId"` // empty string removes the role
}

// BulkImportRequest records are validated one by one, not by the binder
type BulkImportRequest struct {
	Users []CreateUserRequest `json:"users" binding:"required"`
}

type BulkImportFailure struct {
	Input CreateUserRequest `json:"input"`
	Error string            `json:"error"`
}

type BulkImportResult struct {
	Successful []UserResponse      `json:"successful"`
	Failed     []BulkImportFailure `json:"failed"`
}

type ListUsersQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
	Status string `form:"status"`
	RoleID string `form:"roleId"`
}

type UserListResponse struct {
	Users      []UserResponse  `json:"users"`
	Pagination pagination.Meta `json:"pagination"`
}

// profileFields is everything the self-service endpoint may change
var profileFields = map[string]bool{
	"firstName":   true,
	"lastName":    true,
	"phone":       true,
	"preferences": true,
}

// UserResponse is the client view of a user; credentials are never part of it
type UserResponse struct {
	ID             uuid.UUID      `json:"id"`
	Email          string         `json:"email"`
	FirstName      string         `json:"firstName"`
	LastName       string         `json:"lastName"`
	JobTitle       string         `json:"jobTitle,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Preferences    datatypes.JSON `json:"preferences,omitempty"`
	Status         string         `json:"status"`
	RoleID         *uuid.UUID     `json:"roleId"`
	RoleName       string         `json:"roleName,omitempty"`
	OrganizationID uuid.UUID      `json:"organizationId"`
	LastLoginAt    *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	ListUsers(ctx context.Context, actor Identity, q ListUsersQuery) (*UserListResponse, error)
	GetUser(ctx context.Context, actor Identity, id string) (*UserResponse, error)
	CreateUser(ctx context.Context, actor Identity, req CreateUserRequest) (*UserResponse, error)
	UpdateUser(ctx context.Context, actor Identity, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, actor Identity, id string) error
	BulkImport(ctx context.Context, actor Identity, req BulkImportRequest) (*BulkImportResult, error)
	GetProfile(ctx context.Context, actor Identity) (*UserResponse, error)
	UpdateProfile(ctx context.Context, actor Identity, body map[string]any) (*UserResponse, error)
}

type userService struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	identity IdentityProvider
	perms    PermissionService
	audit    *AuditWriter
}

// NewUserService returns a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	identity IdentityProvider,
	perms PermissionService,
	audit *AuditWriter,
) UserService {
	return &userService{users: users, roles: roles, identity: identity, perms: perms, audit: audit}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	resp := &UserResponse{
		ID:             user.ID,
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		JobTitle:       user.JobTitle,
		Phone:          user.Phone,
		Preferences:    user.Preferences,
		Status:         user.Status,
		RoleID:         user.RoleID,
		OrganizationID: user.OrganizationID,
		LastLoginAt:    user.LastLoginAt,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
	if user.Role != nil {
		resp.RoleName = user.Role.Name
	}
	return resp
}

func (s *userService) ListUsers(ctx context.Context, actor Identity, q ListUsersQuery) (*UserListResponse, error) {
	p := pagination.Normalize(q.Page, q.Limit)
	filter := repository.UserFilter{
		Search: q.Search,
		Status: strings.ToLower(strings.TrimSpace(q.Status)),
		Page:   p.Page,
		Limit:  p.Limit,
	}
	if filter.Status != "" && !model.ValidUserStatus(filter.Status) {
		return nil, apperror.Validation("Invalid status filter")
	}
	if q.RoleID != "" {
		id, err := uuid.Parse(q.RoleID)
		if err != nil {
			return nil, apperror.Validation("Invalid roleId filter")
		}
		filter.RoleID = &id
	}

	users, total, err := s.users.List(ctx, actor.OrganizationID, filter)
	if err != nil {
		return nil, apperror.Internal("Failed to fetch users", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return &UserListResponse{Users: responses, Pagination: pagination.NewMeta(p, total)}, nil
}

func (s *userService) load(ctx context.Context, actor Identity, id string) (*model.User, error) {
	userID, err := parseID(id, "User not found")
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetInOrg(ctx, actor.OrganizationID, userID)
	if err != nil {
		return nil, notFoundOr(err, "User not found", "Failed to fetch user")
	}
	return user, nil
}

func (s *userService) GetUser(ctx context.Context, actor Identity, id string) (*UserResponse, error) {
	user, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) CreateUser(ctx context.Context, actor Identity, req CreateUserRequest) (*UserResponse, error) {
	user, err := s.provision(ctx, actor, req)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &actor, model.ActionCreateUser, model.ResourceUsers, user.ID.String(), map[string]any{
		"email":  user.Email,
		"roleId": user.RoleID,
	})
	return mapToResponse(user), nil
}

// provision validates one record, creates the identity account and then the user row.
// A failed row insert deletes the account again.
func (s *userService) provision(ctx context.Context, actor Identity, req CreateUserRequest) (*model.User, error) {
	if err := validateNewUser(&req); err != nil {
		return nil, err
	}

	user := &model.User{
		Email:          req.Email,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		JobTitle:       req.JobTitle,
		Phone:          req.Phone,
		Status:         req.Status,
		OrganizationID: actor.OrganizationID,
	}
	if req.RoleID != "" {
		role, err := s.roleInOrg(ctx, actor.OrganizationID, req.RoleID)
		if err != nil {
			return nil, err
		}
		user.RoleID = &role.ID
		user.Role = role
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperror.Validation("Email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Internal("Failed to create user", err)
	}

	cred, err := s.identity.CreateAccount(ctx, req.Email, req.Password, "local")
	if err != nil {
		return nil, err
	}
	user.IdentityID = cred.ID

	if err := s.users.Create(ctx, user); err != nil {
		_ = s.identity.DeleteAccount(ctx, cred)
		return nil, apperror.Internal("Failed to create user", err)
	}
	return user, nil
}

func validateNewUser(req *CreateUserRequest) error {
	req.Email = model.NormalizeEmail(req.Email)
	if req.Email == "" {
		return apperror.Validation("Email is required")
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return apperror.Validation("Invalid email address")
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return apperror.Validation("First name and last name are required")
	}
	if len(req.Password) < minPasswordLength {
		return apperror.Validation("Password must be at least 8 characters")
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if req.Status == "" {
		req.Status = model.UserStatusActive
	}
	if !model.ValidUserStatus(req.Status) {
		return apperror.Validation("Invalid status")
	}
	return nil
}

func (s *userService) roleInOrg(ctx context.Context, orgID uuid.UUID, id string) (*model.Role, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.Validation("Invalid roleId")
	}
	role, err := s.roles.GetInOrg(ctx, orgID, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.Validation("Role not found")
		}
		return nil, apperror.Internal("Failed to fetch role", err)
	}
	return role, nil
}

func (s *userService) UpdateUser(ctx context.Context, actor Identity, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	// Self access skips the users:update check, but only covers the profile fields
	if user.ID == actor.ID && (req.JobTitle != nil || req.RoleID != nil || req.Status != nil) {
		allowed, err := s.perms.HasPermission(ctx, actor.ID, model.ResourceUsers, "update")
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, apperror.Authorization("Insufficient permissions to change these fields")
		}
	}

	changes := map[string]any{}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
		changes["firstName"] = user.FirstName
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
		changes["lastName"] = user.LastName
	}
	if req.JobTitle != nil {
		user.JobTitle = *req.JobTitle
		changes["jobTitle"] = user.JobTitle
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
		changes["phone"] = user.Phone
	}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		if !model.ValidUserStatus(status) {
			return nil, apperror.Validation("Invalid status")
		}
		user.Status = status
		changes["status"] = status
	}
	if req.RoleID != nil {
		if *req.RoleID == "" {
			user.RoleID, user.Role = nil, nil
		} else {
			role, err := s.roleInOrg(ctx, actor.OrganizationID, *req.RoleID)
			if err != nil {
				return nil, err
			}
			user.RoleID, user.Role = &role.ID, role
		}
		changes["roleId"] = user.RoleID
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperror.Internal("Failed to update user", err)
	}

	s.audit.Record(ctx, &actor, model.ActionUpdateUser, model.ResourceUsers, user.ID.String(), changes)
	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, actor Identity, id string) error {
	user, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if user.ID == actor.ID {
		return apperror.Validation("Cannot delete your own account")
	}

	if err := s.users.Delete(ctx, actor.OrganizationID, user.ID); err != nil {
		return notFoundOr(err, "User not found", "Failed to delete user")
	}
	if cred, err := s.identity.Lookup(ctx, user.Email); err == nil {
		_ = s.identity.DeleteAccount(ctx, cred)
	}

	s.audit.Record(ctx, &actor, model.ActionDeleteUser, model.ResourceUsers, user.ID.String(), map[string]any{
		"email": user.Email,
		"name":  user.FullName(),
	})
	return nil
}

// BulkImport handles every record on its own; one bad record never aborts the batch.
// Records without a password get a random one and must go through password reset.
func (s *userService) BulkImport(ctx context.Context, actor Identity, req BulkImportRequest) (*BulkImportResult, error) {
	result := &BulkImportResult{
		Successful: make([]UserResponse, 0, len(req.Users)),
		Failed:     []BulkImportFailure{},
	}

	for _, record := range req.Users {
		input := record
		input.Password = ""

		if record.Password == "" {
			record.Password = randomPassword()
		}
		user, err := s.provision(ctx, actor, record)
		if err != nil {
			result.Failed = append(result.Failed, BulkImportFailure{Input: input, Error: publicError(err)})
			continue
		}
		result.Successful = append(result.Successful, *mapToResponse(user))
	}

	s.audit.Record(ctx, &actor, model.ActionBulkImportUsers, model.ResourceUsers, "", map[string]any{
		"total":      len(req.Users),
		"successful": len(result.Successful),
		"failed":     len(result.Failed),
	})
	return result, nil
}

func (s *userService) GetProfile(ctx context.Context, actor Identity) (*UserResponse, error) {
	return s.GetUser(ctx, actor, actor.ID.String())
}

// UpdateProfile applies only profileFields; every other key in body is ignored
func (s *userService) UpdateProfile(ctx context.Context, actor Identity, body map[string]any) (*UserResponse, error) {
	user, err := s.load(ctx, actor, actor.ID.String())
	if err != nil {
		return nil, err
	}

	changed := make([]string, 0, len(profileFields))
	for key, value := range body {
		if !profileFields[key] {
			continue
		}
		switch key {
		case "firstName", "lastName", "phone":
			str, ok := value.(string)
			if !ok {
				return nil, apperror.Validation(key + " must be a string")
			}
			str = strings.TrimSpace(str)
			if key != "phone" && str == "" {
				return nil, apperror.Validation(key + " must not be empty")
			}
			switch key {
			case "firstName":
				user.FirstName = str
			case "lastName":
				user.LastName = str
			case "phone":
				user.Phone = str
			}
		case "preferences":
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, apperror.Validation("preferences must be a JSON value")
			}
			user.Preferences = datatypes.JSON(raw)
		}
		changed = append(changed, key)
	}

	if len(changed) == 0 {
		return mapToResponse(user), nil
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperror.Internal("Failed to update profile", err)
	}

	s.audit.Record(ctx, &actor, model.ActionUpdateProfile, model.ResourceUsers, user.ID.String(), map[string]any{
		"fields": changed,
	})
	return mapToResponse(user), nil
}

func randomPassword() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// publicError is the client-safe message of err
func publicError(err error) string {
	return apperror.PublicMessage(err, false)
}
