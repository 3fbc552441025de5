package database

import (
	"fmt"
	"time"

	"compliancehub/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection opens the postgres pool through GORM and migrates the schema
func NewConnection(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(log, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		log.WithError(err).Warn("failed to auto-migrate models")
	}

	return db, nil
}

// Migrate creates or updates every table the API owns
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Organization{},
		&model.Permission{},
		&model.Role{},
		&model.Credential{},
		&model.PasswordResetToken{},
		&model.User{},
		&model.AuditLog{},
		&model.Subscription{},
	)
}
