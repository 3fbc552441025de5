package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "compliancehub/api/swagger" // swagger docs
	"compliancehub/internal/app"
	"compliancehub/internal/cache"
	"compliancehub/internal/config"
	"compliancehub/internal/database"
	"compliancehub/internal/mailer"
	"compliancehub/internal/metrics"
	"compliancehub/internal/middleware"
	"compliancehub/internal/repository/memory"
	"compliancehub/internal/service"
	"compliancehub/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// @title           Compliance Hub API
// @version         1.0
// @description     Multi-tenant compliance backend: organizations, users, roles and an audit trail.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	log := newLogger(cfg)
	if cfg.Auth.SecretsFallback {
		log.Warn("JWT secrets not set, using development defaults")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repos app.Repositories
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("Using in-memory store; data is lost on restart")
		repos = app.MemoryRepositories(memory.NewStore())
	default:
		db, err := database.NewConnection(cfg.DatabaseURL, log)
		if err != nil {
			log.Fatalf("Database connection failed: %v", err)
		}
		log.Info("Connected to PostgreSQL successfully.")
		repos = app.PostgresRepositories(db)
	}

	var (
		denylist cache.TokenDenylist
		limiter  middleware.LimiterStore
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		defer client.Close()
		denylist = cache.NewRedisDenylist(client, "compliancehub:denylist")
		limiter = middleware.NewRedisLimiterStore(client, "compliancehub:ratelimit")
	} else {
		denylist = cache.NewMemoryDenylist(cfg.Auth.RefreshTTL)
		limiter = middleware.NewMemoryLimiterStore(100_000, longestWindow(cfg.Limits))
	}

	providers := make(map[string]service.OAuthProvider, len(cfg.OAuth))
	for name, pc := range cfg.OAuth {
		p, err := service.NewOIDCProvider(ctx, pc)
		if err != nil {
			log.WithError(err).WithField("provider", name).Error("OAuth provider disabled")
			continue
		}
		providers[name] = p
	}

	hub := websocket.NewHub(cfg.CORSOrigins, log)
	go hub.Run(ctx)

	a := app.New(app.Options{
		Config:   cfg,
		Log:      log,
		Metrics:  metrics.New(),
		Repos:    repos,
		Denylist: denylist,
		Limiter:  limiter,
		Mailer:   mailer.NewLogSender(log),
		OAuth:    providers,
		Hub:      hub,
	})

	if _, err := a.Services.Permissions.SeedCatalog(ctx); err != nil {
		log.Fatalf("Seeding permission catalog failed: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	a.Tasks.Wait()
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func longestWindow(limits map[string]config.RateLimitRule) time.Duration {
	var longest time.Duration
	for _, r := range limits {
		if r.Window > longest {
			longest = r.Window
		}
	}
	if longest == 0 {
		longest = time.Hour
	}
	return longest
}
