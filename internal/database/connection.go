package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
}

const (
	maxConnectAttempts = 5
	maxOpenConns       = 25
	maxIdleConns       = 5
	connMaxLifetime    = 5 * time.Minute
)

// InitDatabase opens the database described by cfg and verifies it with a
// ping. Transient startup failures (the usual case when the database container
// comes up alongside the API) are retried with exponential backoff.
func InitDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	var lastErr error

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		db, err := openOnce(cfg)
		if err == nil {
			log.WithFields(logrus.Fields{
				"db_driver": cfg.Driver,
				"attempt":   attempt,
			}).Info("Database connection established")
			return db, nil
		}
		lastErr = err

		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Database connection attempt failed")

		if attempt < maxConnectAttempts {
			// 1s, 2s, 4s, 8s between attempts
			time.Sleep(time.Second << (attempt - 1))
		}
	}

	return nil, fmt.Errorf("database unreachable after %d attempts: %w", maxConnectAttempts, lastErr)
}

func openOnce(cfg DatabaseConfig) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	case "sqlite", "":
		db, err = gorm.Open(sqlite.Open(cfg.DSN()), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}
