package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/calai-cam/backend/config"
)

// Connect opens the configured database backend and returns a gorm handle.
// The local embedded backend (sqlite) and the hosted backend (postgres)
// expose identical behavior through the same handle.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return connectSQLite(cfg.SQLitePath)
	case "postgres":
		return connectPostgres(cfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

func connectSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// WAL keeps readers from blocking the writer on concurrent requests.
	if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	slog.Info("connected to sqlite database", "path", path)
	return db, nil
}

func connectPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.PostgresDSN()

	// Ping with a raw connection first so startup ordering against the
	// database container surfaces as a clear error.
	if err := waitForPostgres(dsn, 10, time.Second); err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("connected to postgres database", "host", cfg.DBHost, "port", cfg.DBPort, "db", cfg.DBName)
	return db, nil
}

func waitForPostgres(dsn string, attempts int, delay time.Duration) error {
	raw, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	defer func() { _ = raw.Close() }()

	for i := 1; i <= attempts; i++ {
		if err = raw.Ping(); err == nil {
			return nil
		}
		if i < attempts {
			slog.Warn("postgres not ready, retrying", "attempt", i, "error", err)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("postgres unreachable after %d attempts: %w", attempts, err)
}
