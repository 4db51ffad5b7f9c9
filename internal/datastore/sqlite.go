package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/taxondb/internal/errors"
)

// SQLiteStore is the SQLite-backed datastore.
type SQLiteStore struct {
	DataStore
}

// Open initializes the SQLite database connection and migrates the schema.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Database.Path
	if path == "" {
		return errors.Newf("database path not configured").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	dir := filepath.Dir(path)
	if err := createDirectory(dir); err != nil {
		return errors.Newf("failed to create database directory %s: %w", dir, err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Build()
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(store.Settings.Debug),
	})
	if err != nil {
		return errors.Newf("failed to open SQLite database %s: %w", path, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	store.DB = db

	if err := performAutoMigration(db); err != nil {
		return err
	}

	getLogger().Info("database opened", "path", path)
	return nil
}

// Close releases the underlying connection pool.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return dbError(err, "close", "failed to access underlying connection")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "failed to close database")
	}
	store.DB = nil
	return nil
}

// performAutoMigration migrates the primary database schema. Attached
// reference databases are read-only and never migrated.
func performAutoMigration(db *gorm.DB) error {
	if err := db.AutoMigrate(&AudioFile{}, &Detection{}); err != nil {
		return errors.Newf("failed to migrate database schema: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// UnderlyingDB exposes the GORM handle for test fixtures.
func (store *SQLiteStore) UnderlyingDB() *gorm.DB {
	return store.DB
}

func createDirectory(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}
