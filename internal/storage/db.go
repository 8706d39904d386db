package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured relational store. Postgres is the
// runtime driver; sqlite exists for local runs and tests.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch driver {
	case "postgres":
		dial = postgres.Open(dsn)
	case "sqlite":
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return db, nil
}

// Migrate creates or updates the schema for all persisted tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&CompanyRef{},
		&FinancialSnapshotRecord{},
		&CollectionProgress{},
		&ConsensusMetric{},
		&ConsensusDiffLog{},
	)
}
