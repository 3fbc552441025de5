// Command audit-retention deletes audit entries older than the retention window across
// every organization. Run it from cron; the API's cleanup endpoint covers one organization.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"compliancehub/internal/config"
	"compliancehub/internal/database"
	"compliancehub/internal/metrics"
	"compliancehub/internal/repository"
	"compliancehub/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	var (
		days    = flag.Int("days", cfg.AuditRetentionDays, "Retention in days")
		orgFlag = flag.String("org", "", "Limit the purge to one organization id")
		timeout = flag.Duration("timeout", 5*time.Minute, "Overall deadline")
	)
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	var orgID *uuid.UUID
	if *orgFlag != "" {
		id, err := uuid.Parse(*orgFlag)
		if err != nil {
			log.Fatalf("invalid -org: %v", err)
		}
		orgID = &id
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.NewConnection(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	repo := repository.NewAuditRepository(db)
	writer := service.NewAuditWriter(repo, log, metrics.New())
	res, err := service.NewAuditService(repo, writer, cfg.AuditRetentionDays).Purge(ctx, orgID, *days)
	if err != nil {
		log.Fatalf("Audit purge failed: %v", err)
	}
	log.WithFields(logrus.Fields{
		"deleted":       res.Deleted,
		"retentionDays": res.RetentionDays,
		"cutoff":        res.Cutoff,
	}).Info("Audit purge complete")
}
