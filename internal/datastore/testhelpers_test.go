package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/taxondb/internal/conf"
)

// newTestSettings builds settings pointing every database into a fresh
// temp directory. Reference databases do not exist until a seed helper
// creates them, exercising the best-effort attach path.
func newTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	return &conf.Settings{
		Database: conf.DatabaseSettings{Path: filepath.Join(dir, "birds.db")},
		Taxonomy: conf.TaxonomySettings{
			Language:     "en",
			IOCPath:      filepath.Join(dir, "ioc.db"),
			AvibasePath:  filepath.Join(dir, "avibase.db"),
			PatLevinPath: filepath.Join(dir, "patlevin.db"),
		},
		Region: conf.RegionSettings{
			PackDir:        dir,
			Pack:           "test-pack",
			H3Resolution:   5,
			Strictness:     "vagrant",
			UnknownSpecies: "allow",
		},
	}
}

func setupTestDB(t *testing.T) (*SQLiteStore, *conf.Settings) {
	t.Helper()
	settings := newTestSettings(t)
	store := New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store, settings
}

// execSQL creates or opens the SQLite file at path and runs each statement.
func execSQL(t *testing.T, path string, stmts ...statement) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	for _, s := range stmts {
		require.NoError(t, db.Exec(s.sql, s.args...).Error)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

type statement struct {
	sql  string
	args []any
}

func stmt(sql string, args ...any) statement {
	return statement{sql: sql, args: args}
}

// seedIOC creates an IOC reference database with a small species set.
func seedIOC(t *testing.T, path string) {
	t.Helper()
	execSQL(t, path,
		stmt(`CREATE TABLE species (
			scientific_name TEXT PRIMARY KEY,
			english_name TEXT,
			family TEXT,
			genus TEXT,
			order_name TEXT
		)`),
		stmt(`CREATE TABLE translations (
			scientific_name TEXT,
			language_code TEXT,
			common_name TEXT
		)`),
		stmt(`INSERT INTO species VALUES (?, ?, ?, ?, ?)`,
			"Turdus migratorius", "American Robin", "Turdidae", "Turdus", "Passeriformes"),
		stmt(`INSERT INTO species VALUES (?, ?, ?, ?, ?)`,
			"Cyanocitta cristata", "Blue Jay", "Corvidae", "Cyanocitta", "Passeriformes"),
		stmt(`INSERT INTO translations VALUES (?, ?, ?)`,
			"Turdus migratorius", "fi", "punarintarastas"),
		stmt(`INSERT INTO translations VALUES (?, ?, ?)`,
			"Turdus migratorius", "en", "American Robin"),
	)
}

// seedPatLevin creates a PatLevin labels database with a Spanish name for
// the American Robin.
func seedPatLevin(t *testing.T, path string) {
	t.Helper()
	execSQL(t, path,
		stmt(`CREATE TABLE patlevin_labels (
			scientific_name TEXT,
			language_code TEXT,
			common_name TEXT
		)`),
		stmt(`INSERT INTO patlevin_labels VALUES (?, ?, ?)`,
			"Turdus migratorius", "es", "Petirrojo"),
		stmt(`INSERT INTO patlevin_labels VALUES (?, ?, ?)`,
			"Cyanocitta cristata", "de", "Blauhäher"),
	)
}

// seedAvibase creates an Avibase names database.
func seedAvibase(t *testing.T, path string) {
	t.Helper()
	execSQL(t, path,
		stmt(`CREATE TABLE avibase_names (
			scientific_name TEXT,
			language_code TEXT,
			common_name TEXT
		)`),
		stmt(`INSERT INTO avibase_names VALUES (?, ?, ?)`,
			"Turdus migratorius", "en", "American Robin"),
		stmt(`INSERT INTO avibase_names VALUES (?, ?, ?)`,
			"Turdus migratorius", "pt", "Tordo-americano"),
	)
}

// testCellHex is a valid H3 cell used across region tests.
const testCellHex = "85283473fffffff"

// seedRegionPack creates the test-pack region database. The cell column
// holds the integer form of testCellHex.
func seedRegionPack(t *testing.T, settings *conf.Settings, rows ...regionRow) {
	t.Helper()
	cell, ok := ParseCellHex(testCellHex)
	require.True(t, ok)

	stmts := []statement{
		stmt(`CREATE TABLE species_lookup (avibase_id TEXT PRIMARY KEY, scientific_name TEXT)`),
		stmt(`CREATE TABLE grid_species (h3_cell INTEGER, avibase_id TEXT, confidence_tier TEXT, confidence_boost REAL)`),
	}
	for _, r := range rows {
		stmts = append(stmts,
			stmt(`INSERT INTO species_lookup VALUES (?, ?)`, r.avibaseID, r.scientificName),
			stmt(`INSERT INTO grid_species VALUES (?, ?, ?, ?)`, int64(cell), r.avibaseID, r.tier, r.boost),
		)
	}
	execSQL(t, settings.RegionPackPath(""), stmts...)
}

type regionRow struct {
	avibaseID      string
	scientificName string
	tier           string
	boost          float64
}

// addDetection saves a detection and returns it with its assigned ID.
func addDetection(t *testing.T, store *SQLiteStore, d Detection) Detection {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), &d))
	return d
}

func ts(day, hour int) time.Time {
	return time.Date(2026, 5, day, hour, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}
