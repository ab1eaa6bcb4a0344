// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/store"
)

// DBFile is the database file name inside the data directory.
const DBFile = "chikitsa.db"

const defaultBusyTimeoutMS = 5000

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Driver using SQLite via GORM.
type Driver struct {
	dataDir       string
	busyTimeoutMS int
	db            *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyTimeoutMS
	}
	return &Driver{dataDir: cfg.DataDir, busyTimeoutMS: busy}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the database and migrates the schema.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		filepath.Join(d.dataDir, DBFile), d.busyTimeoutMS)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.db = db

	// SQLite allows one writer; a single connection turns lock contention
	// into pool waits instead of SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(db.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&requestRow{},
		&grantRow{},
		&inviteRow{},
		&identityRow{},
		&recordRow{},
	); err != nil {
		return err
	}
	// AutoMigrate cannot express partial indexes.
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_family_access_requests_pending_pair
		ON family_access_requests (requester_user_id, owner_user_id) WHERE status = 'pending'`).Error
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (d *Driver) Ping(ctx context.Context) error {
	if d.db == nil {
		return errors.New("sqlite driver not initialized")
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Driver) Ledger() familyaccess.Ledger { return &ledger{db: d.db} }
func (d *Driver) Directory() directory.Store { return &directoryStore{db: d.db} }
func (d *Driver) Records() records.Store { return &recordStore{db: d.db} }
