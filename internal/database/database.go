package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nuwa/carbon-engine/internal/config"
	"nuwa/carbon-engine/internal/projects"
)

// Open connects to PostgreSQL, retrying with exponential backoff until the
// database accepts connections or the retries run out.
//
// PreferSimpleProtocol disables prepared statement caching, which breaks
// behind transaction-mode poolers.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	var db *gorm.DB

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		conn, err := gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.GetDatabaseURL(),
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			logger.Warn("Failed to connect to database", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			logger.Warn("Database not ready", zap.Int("attempt", attempt), zap.Error(err))
			_ = sqlDB.Close()
			return err
		}

		db = conn
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not connect to database after %d attempts: %w", attempt, err)
	}

	if err := Configure(db, cfg); err != nil {
		return nil, err
	}

	logger.Info("Connected to database",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
		zap.Int("attempts", attempt))
	return db, nil
}

// Configure applies the pool settings.
func Configure(db *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	return nil
}

// Migrate creates or updates the engine tables.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := projects.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("Database migrated", zap.Int("tables", len(projects.Models())))
	return nil
}

// Ping checks that the database is reachable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
