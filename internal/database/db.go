// Package database is the gorm-backed store for agents, actions, the audit
// log and the logistics entities that action handlers mutate.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"waypoint/internal/models"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store wraps the database connection
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the database and migrates the schema
func Open(driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}

	db, err := gorm.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: failed to connect: %w", err)
	}
	db.LogMode(false)

	if driver == DriverSQLite {
		// A single connection serializes writers and keeps :memory: databases alive.
		db.DB().SetMaxOpenConns(1)
		db.DB().SetMaxIdleConns(1)
		db.DB().SetConnMaxLifetime(0)
	} else {
		db.DB().SetMaxIdleConns(10)
		db.DB().SetMaxOpenConns(100)
		db.DB().SetConnMaxLifetime(time.Hour)
	}

	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates every table the store uses
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&models.Agent{},
		&models.Action{},
		&models.AuditEntry{},
		&models.PurchaseOrder{},
		&models.DisposalOrder{},
		&models.InventoryItem{},
		&models.Vehicle{},
		&models.Shipment{},
	).Error
	if err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.DB().PingContext(ctx)
}

// conn returns the handle to use for a request, refusing work once the
// caller's context is done. gorm v1 has no context plumbing of its own.
func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.db, nil
}
