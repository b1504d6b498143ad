// Package persistence stores the custody operation journal with gorm.
package persistence

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"github.com/vaultbridge/backend/internal/infrastructure/config"
	"github.com/vaultbridge/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Database holds the journal's connection
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the database selected by cfg.Driver, installs query
// tracing and migrates the journal schema.
func NewDatabase(cfg config.DatabaseConfig, logLevel string, log *zap.Logger) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := Open(dialector, logger.NewGormLogger(log, logger.GormLevel(logLevel), cfg.SlowQuery))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

// Open wraps an already chosen dialector
func Open(dialector gorm.Dialector, gormLogger *logger.GormLogger) (*Database, error) {
	cfg := &gorm.Config{SkipDefaultTransaction: true}
	if gormLogger != nil {
		cfg.Logger = gormLogger
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(dialector.Name()),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
	}
	return &Database{DB: db}, nil
}

// Migrate creates or updates the journal table
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(&OperationModel{}); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	return nil
}

// Close closes the connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks the connection
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}
