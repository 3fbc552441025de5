package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"compliancehub/internal/apperror"
	"compliancehub/internal/config"
	"compliancehub/internal/model"
	"compliancehub/internal/repository"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrUnknownProvider = apperror.Validation("Unknown OAuth provider")
	ErrInvalidState    = apperror.Validation("Invalid OAuth state")
)

// ExternalIdentity is what a provider asserts about the signed-in person
type ExternalIdentity struct {
	Subject string
	Email   string
	Name    string
}

// OAuthProvider is one configured authorization server
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ExternalIdentity, error)
}

type oidcProvider struct {
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider runs discovery against the issuer; it needs network access
func NewOIDCProvider(ctx context.Context, cfg config.OAuthProviderConfig) (OAuthProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", cfg.IssuerURL, err)
	}
	return &oidcProvider{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *oidcProvider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

func (p *oidcProvider) Exchange(ctx context.Context, code string) (*ExternalIdentity, error) {
	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	rawID, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("missing id_token in token response")
	}
	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if claims.Email == "" {
		return nil, errors.New("missing email claim")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, errors.New("email not verified")
	}
	return &ExternalIdentity{Subject: idToken.Subject, Email: claims.Email, Name: claims.Name}, nil
}

type OAuthService interface {
	// Begin returns the provider redirect and the state to pin in a cookie
	Begin(provider string) (redirect, state string, err error)
	// Complete returns where the browser goes next: the app with a token, or onboarding
	Complete(ctx context.Context, state, code string) (string, error)
}

type oauthService struct {
	providers   map[string]OAuthProvider
	users       repository.UserRepository
	auth        AuthService
	audit       *AuditWriter
	frontendURL string
}

func NewOAuthService(providers map[string]OAuthProvider, users repository.UserRepository, auth AuthService, audit *AuditWriter, frontendURL string) OAuthService {
	return &oauthService{providers: providers, users: users, auth: auth, audit: audit, frontendURL: frontendURL}
}

// The state carries the provider name so the shared callback knows which one to use
func (s *oauthService) Begin(provider string) (string, string, error) {
	name := strings.ToLower(provider)
	p, ok := s.providers[name]
	if !ok {
		return "", "", ErrUnknownProvider
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", apperror.Internal("Failed to start OAuth flow", err)
	}
	state := name + "." + hex.EncodeToString(b)
	return p.AuthCodeURL(state), state, nil
}

func (s *oauthService) Complete(ctx context.Context, state, code string) (string, error) {
	name, _, ok := strings.Cut(state, ".")
	if !ok || code == "" {
		return "", ErrInvalidState
	}
	p, ok := s.providers[name]
	if !ok {
		return "", ErrUnknownProvider
	}

	ext, err := p.Exchange(ctx, code)
	if err != nil {
		return "", apperror.Wrap(apperror.KindAuthentication, "OAuth sign-in failed", err)
	}
	email := model.NormalizeEmail(ext.Email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.frontendURL + "/onboarding?" + url.Values{"email": {email}, "provider": {name}}.Encode(), nil
		}
		return "", apperror.Internal("Failed to complete OAuth sign-in", err)
	}
	if !user.IsActive() {
		return "", errInactive
	}

	resp, err := s.auth.IssueFor(ctx, user)
	if err != nil {
		return "", err
	}
	actor := identityOf(user)
	s.audit.Record(ctx, &actor, model.ActionLogin, model.ResourceAuth, user.ID.String(), map[string]any{
		"provider": name,
	})
	return s.frontendURL + "/auth/callback#" + url.Values{"token": {resp.Token}, "refreshToken": {resp.RefreshToken}}.Encode(), nil
}
