package datastore

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/taxondb/internal/errors"
)

func TestAttachMissingFileFails(t *testing.T) {
	t.Parallel()
	store, _ := setupTestDB(t)

	err := store.DB.Connection(func(conn *gorm.DB) error {
		return store.attachDatabase(conn, "/nonexistent/ioc.db", AliasIOC)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestAttachRejectsUnknownAlias(t *testing.T) {
	t.Parallel()
	store, settings := setupTestDB(t)
	seedIOC(t, settings.Taxonomy.IOCPath)

	err := store.DB.Connection(func(conn *gorm.DB) error {
		return store.attachDatabase(conn, settings.Taxonomy.IOCPath, Alias("evil; DROP TABLE detections"))
	})
	require.Error(t, err)

	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, string(errors.CategoryValidation), enhanced.GetCategory())
}

func TestWithTaxonomyBestEffort(t *testing.T) {
	t.Parallel()
	store, settings := setupTestDB(t)

	// Only the IOC database exists; the others must be skipped without
	// failing the session.
	seedIOC(t, settings.Taxonomy.IOCPath)

	err := store.withTaxonomy(context.Background(), func(conn *gorm.DB, att attachedSources) error {
		assert.True(t, att.ioc)
		assert.False(t, att.avibase)
		assert.False(t, att.patlevin)

		var name string
		return conn.Raw("SELECT english_name FROM ioc.species WHERE scientific_name = ?", "Turdus migratorius").Scan(&name).Error
	})
	require.NoError(t, err)
}

func TestWithTaxonomyNoSources(t *testing.T) {
	t.Parallel()
	store, _ := setupTestDB(t)

	err := store.withTaxonomy(context.Background(), func(conn *gorm.DB, att attachedSources) error {
		assert.False(t, att.any())
		return nil
	})
	require.NoError(t, err)
}

func TestWithTaxonomyDetachesOnReturn(t *testing.T) {
	t.Parallel()
	store, settings := setupTestDB(t)
	seedIOC(t, settings.Taxonomy.IOCPath)

	ctx := context.Background()
	require.NoError(t, store.withTaxonomy(ctx, func(conn *gorm.DB, att attachedSources) error {
		require.True(t, att.ioc)
		return nil
	}))

	// A later session on the pool must be able to attach the same alias
	// again, which fails if the previous session leaked its attachment.
	require.NoError(t, store.withTaxonomy(ctx, func(conn *gorm.DB, att attachedSources) error {
		require.True(t, att.ioc)
		return nil
	}))
}

func TestWithRegionPackMissingPack(t *testing.T) {
	t.Parallel()
	store, _ := setupTestDB(t)

	err := store.WithRegionPack(context.Background(), "no-such-pack", func(rs *RegionSession) error {
		t.Fatal("callback must not run when the pack is missing")
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestWithRegionPackQueries(t *testing.T) {
	t.Parallel()
	store, settings := setupTestDB(t)
	seedRegionPack(t, settings, regionRow{"avib1", "Turdus migratorius", "common", 1.2})

	cell, ok := ParseCellHex(testCellHex)
	require.True(t, ok)

	err := store.WithRegionPack(context.Background(), "", func(rs *RegionSession) error {
		tier, found, err := rs.ConfidenceTier("Turdus migratorius", cell)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, TierCommon, tier)
		return nil
	})
	require.NoError(t, err)
}
