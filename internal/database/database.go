// Package database connects to Postgres and owns the schema for the
// index/mirror tables described in SPEC_FULL.md §10.3. The authoritative
// bytes for transcripts and votes live in flat files; these tables exist
// only so the admin surface can query with SQL instead of walking
// directories, matching the teacher's mixed Postgres+S3 persistence style.
package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"eum-captions/internal/model"
)

// Connect opens a Postgres connection using the given DSN. A zap logger is
// optional; when nil gorm logs are silenced.
func Connect(dsn string, logger *zap.SugaredLogger) (*gorm.DB, error) {
	gcfg := &gorm.Config{}
	if logger == nil {
		gcfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(postgres.Open(dsn), gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if logger != nil {
		logger.Infow("database connected")
	}
	return db, nil
}

// AutoMigrate creates or updates every table this application owns.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.AuthEntryRecord{},
		&model.VoteRecord{},
		&model.TranscriptSessionRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
