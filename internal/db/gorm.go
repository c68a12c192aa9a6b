package db

import (
	"fmt"
	"log"
	"time"

	"collab-sync/internal/config"
	"collab-sync/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// JournalDB is the postgres connection behind the presence journal
type JournalDB struct {
	*gorm.DB
}

// OpenJournal connects, sizes the pool for the journal workers, and migrates presence_events
func OpenJournal(cfg *config.Config) (*JournalDB, error) {
	// Journal inserts are frequent and uninteresting; only log problems
	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	// One connection per worker plus one for the diagnostics endpoints
	sqlDB.SetMaxOpenConns(cfg.JournalWorkers + 1)
	sqlDB.SetMaxIdleConns(cfg.JournalWorkers)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := gdb.AutoMigrate(&models.PresenceEvent{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate presence_events: %w", err)
	}

	log.Printf("✓ Presence journal database ready (%s:%s/%s)", cfg.DBHost, cfg.DBPort, cfg.DBName)
	return &JournalDB{gdb}, nil
}

func (j *JournalDB) Close() error {
	sqlDB, err := j.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
