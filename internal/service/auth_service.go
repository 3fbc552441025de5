package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/cache"
	"compliancehub/internal/mailer"
	"compliancehub/internal/metrics"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	errLoginFailed  = apperror.Authentication("Invalid email or password")
	errInactive     = apperror.Authorization("Account is inactive")
	errResetInvalid = apperror.Validation("Invalid or expired reset token")
)

type RegisterRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8"`
	FirstName        string `json:"firstName" binding:"required"`
	LastName         string `json:"lastName" binding:"required"`
	OrganizationName string `json:"organizationName" binding:"required"`
	JobTitle         string `json:"jobTitle"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// AuthResponse is returned by every token-issuing endpoint
type AuthResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"` // seconds
	User         UserResponse `json:"user"`
}

type MeResponse struct {
	User        UserResponse `json:"user"`
	Role        string       `json:"role,omitempty"`
	Permissions []string     `json:"permissions"`
}

type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Logout(ctx context.Context, actor Identity, refreshToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	VerifyToken(ctx context.Context, token string) (*Identity, error)
	Me(ctx context.Context, actor Identity) (*MeResponse, error)
	IssueFor(ctx context.Context, user *model.User) (*AuthResponse, error)
}

// AuthDeps groups everything the auth service talks to
type AuthDeps struct {
	Users       repository.UserRepository
	Orgs        repository.OrganizationRepository
	Creds       repository.CredentialRepository
	Tx          repository.TransactionManager
	Identity    IdentityProvider
	Roles       RoleService
	Billing     BillingService
	Perms       PermissionService
	Tokens      *TokenManager
	Denylist    cache.TokenDenylist
	Audit       *AuditWriter
	Mailer      mailer.Sender
	Log         *logrus.Logger
	Metrics     *metrics.Metrics
	FrontendURL string
	ResetTTL    time.Duration
}

type authService struct {
	AuthDeps
	now func() time.Time
}

func NewAuthService(deps AuthDeps) AuthService {
	if deps.ResetTTL <= 0 {
		deps.ResetTTL = time.Hour
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &authService{AuthDeps: deps, now: time.Now}
}

func identityOf(u *model.User) Identity {
	return Identity{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.FullName(),
		OrganizationID: u.OrganizationID,
		RoleID:         u.RoleID,
		Status:         u.Status,
	}
}

// Register creates the account, then organization, default role, user and pending
// subscription in one transaction. Any failure after the account exists deletes the account.
func (s *authService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	req.Email = model.NormalizeEmail(req.Email)
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return nil, apperror.Validation("Invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperror.Validation("Password must be at least 8 characters")
	}
	req.OrganizationName = strings.TrimSpace(req.OrganizationName)
	if req.OrganizationName == "" || strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, apperror.Validation("Missing required fields")
	}

	if _, err := s.Users.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperror.Validation("Email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Internal("Failed to complete registration", err)
	}

	cred, err := s.Identity.CreateAccount(ctx, req.Email, req.Password, "local")
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = s.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		org := &model.Organization{Name: req.OrganizationName}
		if err := s.Orgs.Create(txCtx, org); err != nil {
			return err
		}
		role, err := s.Roles.CreateDefaultRole(txCtx, org.ID)
		if err != nil {
			return err
		}
		user = &model.User{
			IdentityID:     cred.ID,
			Email:          req.Email,
			FirstName:      strings.TrimSpace(req.FirstName),
			LastName:       strings.TrimSpace(req.LastName),
			JobTitle:       req.JobTitle,
			Status:         model.UserStatusActive,
			OrganizationID: org.ID,
			RoleID:         &role.ID,
			Role:           role,
		}
		if err := s.Users.Create(txCtx, user); err != nil {
			return err
		}
		_, err = s.Billing.CreatePending(txCtx, org.ID)
		return err
	})
	if err != nil {
		if delErr := s.Identity.DeleteAccount(ctx, cred); delErr != nil {
			s.Log.WithError(delErr).WithField("email", req.Email).Error("failed to roll back identity account")
		}
		return nil, apperror.Internal("Failed to complete registration", err)
	}

	actor := identityOf(user)
	s.Audit.Record(ctx, &actor, model.ActionRegister, model.ResourceAuth, user.ID.String(), map[string]any{
		"email":        user.Email,
		"organization": req.OrganizationName,
	})
	return s.IssueFor(ctx, user)
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := model.NormalizeEmail(req.Email)

	if _, err := s.Identity.Authenticate(ctx, email, req.Password); err != nil {
		if !errors.Is(err, errInvalidCredentials) {
			return nil, err
		}
		s.loginFailed(ctx, email, nil, "invalid_credentials")
		return nil, errLoginFailed
	}

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.loginFailed(ctx, email, nil, "no_user")
			return nil, errLoginFailed
		}
		return nil, apperror.Internal("Failed to log in", err)
	}
	if !user.IsActive() {
		s.loginFailed(ctx, email, user, "inactive")
		return nil, errInactive
	}

	now := s.now().UTC()
	user.LastLoginAt = &now
	if err := s.Users.Update(ctx, user); err != nil {
		s.Log.WithError(err).WithField("user_id", user.ID.String()).Warn("failed to record last login")
	}

	actor := identityOf(user)
	s.Audit.Record(ctx, &actor, model.ActionLogin, model.ResourceAuth, user.ID.String(), nil)
	return s.IssueFor(ctx, user)
}

// loginFailed records the attempt without an actor. The entry is attributed to the
// organization owning email, when there is one, so tenant reports include it.
func (s *authService) loginFailed(ctx context.Context, email string, user *model.User, reason string) {
	s.Metrics.AuthFailed(reason)
	if user == nil {
		user, _ = s.Users.GetByEmail(ctx, email)
	}
	entry := &model.AuditLog{
		Action:   model.ActionLoginFailed,
		Resource: model.ResourceAuth,
		Details: DetailsJSON(map[string]any{
			"email":  email,
			"reason": reason,
		}),
	}
	if user != nil {
		org := user.OrganizationID
		entry.OrganizationID = &org
	}
	s.Audit.Log(ctx, entry)
}

// Refresh rotates the pair: the presented refresh token is revoked once a new pair is issued
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return nil, err
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	resp, err := s.IssueFor(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.Denylist.Revoke(ctx, claims.ID, remaining(claims.ExpiresAt, s.now())); err != nil {
		s.Log.WithError(err).Warn("failed to revoke rotated refresh token")
	}
	return resp, nil
}

func (s *authService) Logout(ctx context.Context, actor Identity, refreshToken string) error {
	if actor.TokenID != "" {
		if err := s.Denylist.Revoke(ctx, actor.TokenID, actor.ExpiresAt.Sub(s.now())); err != nil {
			return apperror.Internal("Failed to revoke token", err)
		}
	}
	if refreshToken != "" {
		// A refresh token that does not belong to the caller is ignored
		if claims, err := s.Tokens.ParseRefresh(refreshToken); err == nil && claims.UserID == actor.ID.String() {
			if err := s.Denylist.Revoke(ctx, claims.ID, remaining(claims.ExpiresAt, s.now())); err != nil {
				return apperror.Internal("Failed to revoke token", err)
			}
		}
	}

	s.Audit.Record(ctx, &actor, model.ActionLogout, model.ResourceAuth, actor.ID.String(), nil)
	return nil
}

// ForgotPassword never reports whether the email exists; failures are only logged
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)
	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.Log.WithError(err).Error("password reset lookup failed")
		}
		return nil
	}
	if !user.IsActive() {
		return nil
	}

	token, err := randomToken()
	if err != nil {
		s.Log.WithError(err).Error("failed to generate reset token")
		return nil
	}
	reset := &model.PasswordResetToken{
		IdentityID: user.IdentityID,
		TokenHash:  hashToken(token),
		ExpiresAt:  s.now().UTC().Add(s.ResetTTL),
	}
	if err := s.Creds.CreateResetToken(ctx, reset); err != nil {
		s.Log.WithError(err).Error("failed to store reset token")
		return nil
	}

	link := s.FrontendURL + "/reset-password?token=" + url.QueryEscape(token)
	msg := mailer.Message{
		To:      user.Email,
		Subject: "Reset your password",
		Body:    "Use the link below to choose a new password. It expires in " + s.ResetTTL.String() + ".\n\n" + link,
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		s.Log.WithError(err).WithField("user_id", user.ID.String()).Error("failed to send reset email")
		return nil
	}

	actor := identityOf(user)
	s.Audit.Record(ctx, &actor, model.ActionPasswordReset, model.ResourceAuth, user.ID.String(), map[string]any{
		"step": "requested",
	})
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if len(req.Password) < minPasswordLength {
		return apperror.Validation("Password must be at least 8 characters")
	}
	reset, err := s.Creds.GetResetToken(ctx, hashToken(req.Token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errResetInvalid
		}
		return apperror.Internal("Failed to reset password", err)
	}
	now := s.now().UTC()
	if reset.UsedAt != nil || now.After(reset.ExpiresAt) {
		return errResetInvalid
	}

	cred, err := s.Creds.GetByID(ctx, reset.IdentityID)
	if err != nil {
		return notFoundOr(err, "Account not found", "Failed to reset password")
	}
	if err := s.Creds.MarkResetTokenUsed(ctx, reset.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errResetInvalid
		}
		return apperror.Internal("Failed to reset password", err)
	}
	if err := s.Identity.SetPassword(ctx, cred, req.Password); err != nil {
		return err
	}

	if user, err := s.Users.GetByEmail(ctx, cred.Email); err == nil {
		actor := identityOf(user)
		s.Audit.Record(ctx, &actor, model.ActionPasswordReset, model.ResourceAuth, user.ID.String(), map[string]any{
			"step": "completed",
		})
	}
	return nil
}

// VerifyToken checks signature, expiry and revocation, then loads the user so a
// deactivated account loses access immediately
func (s *authService) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.Tokens.ParseAccess(token)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return nil, err
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	id := identityOf(user)
	id.TokenID = claims.ID
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return &id, nil
}

func (s *authService) checkRevoked(ctx context.Context, jti string) error {
	revoked, err := s.Denylist.IsRevoked(ctx, jti)
	if err != nil {
		return apperror.Internal("Failed to verify token", err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

func (s *authService) activeUser(ctx context.Context, rawID string) (*model.User, error) {
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, apperror.Internal("Failed to verify token", err)
	}
	if !user.IsActive() {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (s *authService) Me(ctx context.Context, actor Identity) (*MeResponse, error) {
	user, err := s.Users.GetInOrg(ctx, actor.OrganizationID, actor.ID)
	if err != nil {
		return nil, notFoundOr(err, "User not found", "Failed to fetch user")
	}
	grant, err := s.Perms.ResolveRole(ctx, user.OrganizationID, user.RoleID)
	if err != nil {
		return nil, err
	}
	perms := grant.Codes
	if perms == nil {
		perms = []string{}
	}
	return &MeResponse{User: *mapToResponse(user), Role: grant.Name, Permissions: perms}, nil
}

func (s *authService) IssueFor(_ context.Context, user *model.User) (*AuthResponse, error) {
	access, err := s.Tokens.GenerateToken(user)
	if err != nil {
		return nil, apperror.Internal("Failed to issue token", err)
	}
	refresh, err := s.Tokens.GenerateRefreshToken(user)
	if err != nil {
		return nil, apperror.Internal("Failed to issue token", err)
	}
	return &AuthResponse{
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.Tokens.AccessTTL().Seconds()),
		User:         *mapToResponse(user),
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
