package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"albion-crafter/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNoDatabase is returned when no DSN is configured.
var ErrNoDatabase = errors.New("DATABASE_URL is not set")

// Initialize opens the MySQL store and migrates the snapshot tables.
func Initialize(databaseURL string, environment string) (*gorm.DB, error) {
	if databaseURL == "" {
		return nil, ErrNoDatabase
	}

	logLevel := logger.Warn
	if environment == "production" {
		logLevel = logger.Error
	}

	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.PriceSnapshot{}, &models.ScanRun{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Println("Database initialized successfully")
	return db, nil
}
