// Package app assembles repositories, services and the HTTP router. cmd/api calls it with
// postgres repositories; handler tests call it with the memory store.
package app

import (
	"compliancehub/internal/cache"
	"compliancehub/internal/config"
	"compliancehub/internal/handler"
	"compliancehub/internal/mailer"
	"compliancehub/internal/metrics"
	"compliancehub/internal/middleware"
	"compliancehub/internal/repository"
	"compliancehub/internal/repository/memory"
	"compliancehub/internal/service"
	"compliancehub/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Repositories struct {
	Users         repository.UserRepository
	Roles         repository.RoleRepository
	Organizations repository.OrganizationRepository
	Audit         repository.AuditRepository
	Subscriptions repository.SubscriptionRepository
	Credentials   repository.CredentialRepository
	Tx            repository.TransactionManager
}

func PostgresRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         repository.NewUserRepository(db),
		Roles:         repository.NewRoleRepository(db),
		Organizations: repository.NewOrganizationRepository(db),
		Audit:         repository.NewAuditRepository(db),
		Subscriptions: repository.NewSubscriptionRepository(db),
		Credentials:   repository.NewCredentialRepository(db),
		Tx:            repository.NewTransactionManager(db),
	}
}

func MemoryRepositories(s *memory.Store) Repositories {
	return Repositories{
		Users:         s.Users(),
		Roles:         s.Roles(),
		Organizations: s.Organizations(),
		Audit:         s.Audit(),
		Subscriptions: s.Subscriptions(),
		Credentials:   s.Credentials(),
		Tx:            s.TxManager(),
	}
}

// Options carries the infrastructure chosen by the caller
type Options struct {
	Config   *config.Config
	Log      *logrus.Logger
	Metrics  *metrics.Metrics
	Repos    Repositories
	Denylist cache.TokenDenylist
	Limiter  middleware.LimiterStore
	Mailer   mailer.Sender
	OAuth    map[string]service.OAuthProvider
	Hub      *websocket.Hub
}

type App struct {
	Router   *gin.Engine
	Services handler.Services
	Tasks    *middleware.Tasks
}

// New builds every service and the router. The caller runs opts.Hub.
func New(opts Options) *App {
	cfg := opts.Config
	r := opts.Repos
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	hub := opts.Hub
	if hub == nil {
		hub = websocket.NewHub(cfg.CORSOrigins, log)
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = middleware.NewMemoryLimiterStore(0, cfg.Auth.RefreshTTL)
	}
	denylist := opts.Denylist
	if denylist == nil {
		denylist = cache.NewMemoryDenylist(cfg.Auth.RefreshTTL)
	}
	sender := opts.Mailer
	if sender == nil {
		sender = mailer.NewLogSender(log)
	}

	writer := service.NewAuditWriter(r.Audit, log, m)
	writer.SetPublisher(hub)

	identity := service.NewLocalIdentityProvider(r.Credentials, cfg.Auth.BcryptCost)
	perms := service.NewPermissionService(r.Roles, cfg.PermissionCacheTTL)
	roles := service.NewRoleService(r.Roles, r.Users, perms, r.Tx, writer, cfg.Auth.AdminRoleName)
	billing := service.NewBillingService(r.Subscriptions, writer, cfg.Billing)
	auth := service.NewAuthService(service.AuthDeps{
		Users:       r.Users,
		Orgs:        r.Organizations,
		Creds:       r.Credentials,
		Tx:          r.Tx,
		Identity:    identity,
		Roles:       roles,
		Billing:     billing,
		Perms:       perms,
		Tokens:      service.NewTokenManager(cfg.Auth),
		Denylist:    denylist,
		Audit:       writer,
		Mailer:      sender,
		Log:         log,
		Metrics:     m,
		FrontendURL: cfg.FrontendURL,
		ResetTTL:    cfg.Auth.ResetTokenTTL,
	})

	svcs := handler.Services{
		Auth:          auth,
		OAuth:         service.NewOAuthService(opts.OAuth, r.Users, auth, writer, cfg.FrontendURL),
		Users:         service.NewUserService(r.Users, r.Roles, identity, perms, writer),
		Roles:         roles,
		Organizations: service.NewOrganizationService(r.Organizations, writer),
		Billing:       billing,
		Reports:       service.NewReportService(r.Users, r.Roles, r.Audit, writer),
		Audit:         service.NewAuditService(r.Audit, writer, cfg.AuditRetentionDays),
		Permissions:   perms,
		AuditWriter:   writer,
	}
	tasks := middleware.NewTasks(log)

	router := handler.NewRouter(handler.RouterDeps{
		Config:   cfg,
		Log:      log,
		Metrics:  m,
		Services: svcs,
		Hub:      hub,
		Limiter:  limiter,
		Tasks:    tasks,
	})
	return &App{Router: router, Services: svcs, Tasks: tasks}
}
