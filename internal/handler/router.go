package handler

import (
	"net/http"
	"time"

	"compliancehub/internal/apperror"
	"compliancehub/internal/config"
	"compliancehub/internal/metrics"
	"compliancehub/internal/middleware"
	"compliancehub/internal/service"
	"compliancehub/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Services is every business service the HTTP layer calls
type Services struct {
	Auth          service.AuthService
	OAuth         service.OAuthService
	Users         service.UserService
	Roles         service.RoleService
	Organizations service.OrganizationService
	Billing       service.BillingService
	Reports       service.ReportService
	Audit         service.AuditService
	Permissions   service.PermissionService
	AuditWriter   *service.AuditWriter
}

// RouterDeps is constructed once at startup and handed to NewRouter
type RouterDeps struct {
	Config   *config.Config
	Log      *logrus.Logger
	Metrics  *metrics.Metrics
	Services Services
	Hub      *websocket.Hub
	Limiter  middleware.LimiterStore
	Tasks    *middleware.Tasks
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// NewRouter wires middleware and handlers onto a gin engine
func NewRouter(d RouterDeps) *gin.Engine {
	cfg := d.Config
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.VerboseErrors(cfg.Env == config.EnvDevelopment),
		middleware.RequestContext(),
		middleware.Metrics(d.Metrics),
		middleware.AccessLog(d.Log),
	)

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", signatureHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
	router.Use(cors.New(corsConfig))

	router.Use(middleware.RequestAudit(d.Services.AuditWriter, d.Tasks, "/health", "/metrics", "/swagger"))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC(), Version: cfg.Version})
	})
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	router.NoRoute(func(c *gin.Context) {
		middleware.Abort(c, apperror.NotFound("Route not found"))
	})

	guards := Guards{
		Authenticate: middleware.Authenticate(d.Services.Auth, d.Metrics),
		Authz:        middleware.NewAuthorizer(d.Services.Permissions, d.Services.AuditWriter, d.Metrics),
		Limits:       middleware.NewRateLimiter(d.Limiter, cfg.Limits, d.Log, d.Metrics),
	}

	api := router.Group("")
	NewAuthHandler(d.Services.Auth, d.Services.OAuth, guards, cfg.IsProduction()).RegisterRoutes(api)
	NewUserHandler(d.Services.Users, guards).RegisterRoutes(api)
	NewRoleHandler(d.Services.Roles, guards).RegisterRoutes(api)
	NewOrganizationHandler(d.Services.Organizations, d.Services.Billing, d.Services.Reports, guards).RegisterRoutes(api)
	NewAuditHandler(d.Services.Audit, d.Hub, guards, cfg.Auth.AdminRoleName).RegisterRoutes(api)
	NewWebhookHandler(d.Services.Billing).RegisterRoutes(api)

	return router
}
