package service

import (
	"errors"
	"fmt"
	"time"

	"compliancehub/internal/config"
	"compliancehub/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshTokenType = "refresh"

// AccessClaims is the payload of a session token
type AccessClaims struct {
	UserID         string `json:"userId"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	RoleID         string `json:"roleId,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is signed with a separate secret and only names the user
type RefreshClaims struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates access and refresh tokens
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	return &TokenManager{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := m.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// GenerateToken signs {userId, email, organizationId, roleId}
func (m *TokenManager) GenerateToken(user *model.User) (string, error) {
	claims := AccessClaims{
		UserID:           user.ID.String(),
		Email:            user.Email,
		OrganizationID:   user.OrganizationID.String(),
		RegisteredClaims: m.registered(user.ID.String(), m.accessTTL),
	}
	if user.RoleID != nil {
		claims.RoleID = user.RoleID.String()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) GenerateRefreshToken(user *model.User) (string, error) {
	claims := RefreshClaims{
		UserID:           user.ID.String(),
		Type:             refreshTokenType,
		RegisteredClaims: m.registered(user.ID.String(), m.refreshTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims, secret []byte) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}

// ParseAccess verifies signature, issuer and expiry of an access token
func (m *TokenManager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.accessSecret); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *TokenManager) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims, m.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != refreshTokenType {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// remaining is how long a token stays valid; revocations only need to outlive it
func remaining(exp *jwt.NumericDate, now time.Time) time.Duration {
	if exp == nil {
		return 0
	}
	return exp.Time.Sub(now)
}
