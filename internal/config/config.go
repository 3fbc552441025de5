package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// RateLimit category names
const (
	LimitGeneral       = "general"
	LimitStrict        = "strict"
	LimitLogin         = "login"
	LimitPasswordReset = "password_reset"
	LimitUserCreation  = "user_creation"
	LimitBulk          = "bulk"
	LimitExport        = "export"
)

// Config holds every runtime option of the API process
type Config struct {
	Env      string
	Port     string
	Version  string
	LogLevel string

	StoreDriver string // postgres or memory
	DatabaseURL string
	RedisAddr   string

	Auth   AuthConfig
	Limits map[string]RateLimitRule

	CORSOrigins []string
	FrontendURL string

	AuditRetentionDays int
	PermissionCacheTTL time.Duration

	OAuth   map[string]OAuthProviderConfig
	Billing BillingConfig
}

type AuthConfig struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	Issuer          string
	AdminRoleName   string
	ResetTokenTTL   time.Duration
	BcryptCost      int
	SecretsFallback bool
}

// RateLimitRule is a hard cap of Max requests per Window
type RateLimitRule struct {
	Window time.Duration
	Max    int
}

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	IssuerURL    string
	RedirectURL  string
	Scopes       []string
}

type BillingConfig struct {
	WebhookSecret    string
	DefaultPlanName  string
	DefaultPlanPrice decimal.Decimal
	Currency         string
}

var defaultLimits = map[string]RateLimitRule{
	LimitGeneral:       {Window: 15 * time.Minute, Max: 100},
	LimitStrict:        {Window: 15 * time.Minute, Max: 20},
	LimitLogin:         {Window: 15 * time.Minute, Max: 5},
	LimitPasswordReset: {Window: time.Hour, Max: 3},
	LimitUserCreation:  {Window: time.Hour, Max: 10},
	LimitBulk:          {Window: time.Hour, Max: 5},
	LimitExport:        {Window: time.Hour, Max: 10},
}

// Load reads configs/.env (if present) and the process environment
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests can supply their own environment
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Env:                env("APP_ENV", EnvDevelopment),
		Port:               env("PORT", "8080"),
		Version:            env("APP_VERSION", "1.0.0"),
		LogLevel:           env("LOG_LEVEL", "info"),
		StoreDriver:        strings.ToLower(env("STORE_DRIVER", "postgres")),
		RedisAddr:          env("REDIS_ADDR", ""),
		FrontendURL:        strings.TrimRight(env("FRONTEND_URL", "http://localhost:3000"), "/"),
		CORSOrigins:        splitList(env("CORS_ORIGIN", "http://localhost:3000")),
		AuditRetentionDays: 90,
		PermissionCacheTTL: 5 * time.Minute,
		Limits:             make(map[string]RateLimitRule, len(defaultLimits)),
		OAuth:              make(map[string]OAuthProviderConfig),
	}

	cfg.DatabaseURL = env("DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			env("DB_USER", "postgres"),
			env("DB_PASSWORD", "postgres"),
			env("DB_HOST", "localhost"),
			env("DB_PORT", "5432"),
			env("DB_NAME", "postgres"),
			env("DB_SSLMODE", "disable"),
		)
	}

	if cfg.StoreDriver != "postgres" && cfg.StoreDriver != "memory" {
		return nil, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver)
	}

	var err error
	if cfg.AuditRetentionDays, err = intValue(env("AUDIT_RETENTION_DAYS", "90")); err != nil {
		return nil, fmt.Errorf("AUDIT_RETENTION_DAYS: %w", err)
	}
	if cfg.PermissionCacheTTL, err = time.ParseDuration(env("PERMISSION_CACHE_TTL", "5m")); err != nil {
		return nil, fmt.Errorf("PERMISSION_CACHE_TTL: %w", err)
	}

	if cfg.Auth, err = loadAuth(cfg.Env, env); err != nil {
		return nil, err
	}

	for name, def := range defaultLimits {
		prefix := "RATE_LIMIT_" + strings.ToUpper(name)
		rule := def
		if v := getenv(prefix + "_WINDOW"); v != "" {
			if rule.Window, err = time.ParseDuration(v); err != nil {
				return nil, fmt.Errorf("%s_WINDOW: %w", prefix, err)
			}
		}
		if v := getenv(prefix + "_MAX"); v != "" {
			if rule.Max, err = intValue(v); err != nil {
				return nil, fmt.Errorf("%s_MAX: %w", prefix, err)
			}
		}
		cfg.Limits[name] = rule
	}

	for _, provider := range splitList(env("OAUTH_PROVIDERS", "")) {
		key := "OAUTH_" + strings.ToUpper(provider)
		p := OAuthProviderConfig{
			ClientID:     getenv(key + "_CLIENT_ID"),
			ClientSecret: getenv(key + "_CLIENT_SECRET"),
			IssuerURL:    getenv(key + "_ISSUER"),
			RedirectURL:  env(key+"_REDIRECT_URL", "http://localhost:"+cfg.Port+"/auth/callback"),
			Scopes:       splitList(env(key+"_SCOPES", "openid,email,profile")),
		}
		if p.ClientID == "" || p.IssuerURL == "" {
			return nil, fmt.Errorf("%s_CLIENT_ID and %s_ISSUER are required", key, key)
		}
		cfg.OAuth[strings.ToLower(provider)] = p
	}

	price, err := decimal.NewFromString(env("DEFAULT_PLAN_PRICE", "0.00"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_PLAN_PRICE: %w", err)
	}
	cfg.Billing = BillingConfig{
		WebhookSecret:    env("BILLING_WEBHOOK_SECRET", ""),
		DefaultPlanName:  env("DEFAULT_PLAN_NAME", "starter"),
		DefaultPlanPrice: price,
		Currency:         env("DEFAULT_PLAN_CURRENCY", "USD"),
	}

	return cfg, nil
}

func loadAuth(appEnv string, env func(string, string) string) (AuthConfig, error) {
	a := AuthConfig{
		AccessSecret:  []byte(env("JWT_SECRET", "")),
		RefreshSecret: []byte(env("JWT_REFRESH_SECRET", "")),
		Issuer:        env("JWT_ISSUER", "compliancehub"),
		AdminRoleName: env("ADMIN_ROLE_NAME", "Admin"),
		BcryptCost:    10,
	}

	if len(a.AccessSecret) == 0 || len(a.RefreshSecret) == 0 {
		if appEnv == EnvProduction {
			return AuthConfig{}, errors.New("JWT_SECRET and JWT_REFRESH_SECRET are required in production")
		}
		// Development fallback only
		a.AccessSecret = []byte("dev_access_secret_change_me")
		a.RefreshSecret = []byte("dev_refresh_secret_change_me")
		a.SecretsFallback = true
	}
	if string(a.AccessSecret) == string(a.RefreshSecret) {
		return AuthConfig{}, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}

	var err error
	if a.AccessTTL, err = time.ParseDuration(env("JWT_EXPIRES_IN", "24h")); err != nil {
		return AuthConfig{}, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	if a.RefreshTTL, err = time.ParseDuration(env("JWT_REFRESH_EXPIRES_IN", "168h")); err != nil {
		return AuthConfig{}, fmt.Errorf("JWT_REFRESH_EXPIRES_IN: %w", err)
	}
	if a.ResetTokenTTL, err = time.ParseDuration(env("PASSWORD_RESET_TTL", "1h")); err != nil {
		return AuthConfig{}, fmt.Errorf("PASSWORD_RESET_TTL: %w", err)
	}
	if a.BcryptCost, err = intValue(env("BCRYPT_COST", "10")); err != nil {
		return AuthConfig{}, fmt.Errorf("BCRYPT_COST: %w", err)
	}
	return a, nil
}

// IsProduction reports whether internal error details must be hidden from clients
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Limit returns the rule for a category, falling back to the general rule
func (c *Config) Limit(category string) RateLimitRule {
	if rule, ok := c.Limits[category]; ok {
		return rule
	}
	return c.Limits[LimitGeneral]
}

// RetentionWindow is the audit retention window as a duration
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

func intValue(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative: %d", n)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
