package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/taxondb/internal/conf"
	"github.com/tphakala/taxondb/internal/datastore"
)

// Coordinates inside H3 cell 85283083fffffff at resolution 5.
const (
	testLat     = 37.7749
	testLon     = -122.4194
	testCellHex = "85283083fffffff"
)

func newService(t *testing.T) (*Service, *datastore.SQLiteStore, *conf.Settings) {
	t.Helper()
	dir := t.TempDir()
	settings := &conf.Settings{
		Database: conf.DatabaseSettings{Path: filepath.Join(dir, "birds.db")},
		Region: conf.RegionSettings{
			PackDir:        dir,
			Pack:           "test-pack",
			H3Resolution:   5,
			Strictness:     "vagrant",
			UnknownSpecies: "allow",
		},
		Audio: conf.AudioSettings{RecordingsDir: filepath.Join(dir, "recordings")},
	}
	require.NoError(t, os.MkdirAll(settings.Audio.RecordingsDir, 0o755))

	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	return New(store, settings), store, settings
}

// seedPack writes the region pack database with one row per species.
func seedPack(t *testing.T, settings *conf.Settings, tiers map[string]string) {
	t.Helper()
	cell, ok := datastore.ParseCellHex(testCellHex)
	require.True(t, ok)

	db, err := gorm.Open(sqlite.Open(settings.RegionPackPath("")), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE species_lookup (avibase_id TEXT PRIMARY KEY, scientific_name TEXT)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE grid_species (h3_cell INTEGER, avibase_id TEXT, confidence_tier TEXT, confidence_boost REAL)`).Error)

	i := 0
	for sci, tier := range tiers {
		id := string(rune('a'+i)) + "vib"
		require.NoError(t, db.Exec(`INSERT INTO species_lookup VALUES (?, ?)`, id, sci).Error)
		require.NoError(t, db.Exec(`INSERT INTO grid_species VALUES (?, ?, ?, ?)`, int64(cell), id, tier, 1.0).Error)
		i++
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func addDetection(t *testing.T, store *datastore.SQLiteStore, sci string, located bool) datastore.Detection {
	t.Helper()
	d := datastore.Detection{
		ScientificName: sci,
		Confidence:     0.8,
		Timestamp:      time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC),
	}
	if located {
		lat, lon := testLat, testLon
		d.Latitude = &lat
		d.Longitude = &lon
	}
	require.NoError(t, store.Save(context.Background(), &d))
	return d
}

func addDetectionWithAudio(t *testing.T, store *datastore.SQLiteStore, sci, audioPath string) datastore.Detection {
	t.Helper()
	audio := datastore.AudioFile{Path: audioPath}
	require.NoError(t, store.DB.Create(&audio).Error)
	d := datastore.Detection{
		ScientificName: sci,
		Confidence:     0.8,
		Timestamp:      time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC),
		AudioFileID:    &audio.ID,
	}
	lat, lon := testLat, testLon
	d.Latitude = &lat
	d.Longitude = &lon
	require.NoError(t, store.Save(context.Background(), &d))
	return d
}

func countDetections(t *testing.T, store *datastore.SQLiteStore) int64 {
	t.Helper()
	var n int64
	require.NoError(t, store.DB.Model(&datastore.Detection{}).Count(&n).Error)
	return n
}

func TestPreviewCountsWithoutDeleting(t *testing.T) {
	t.Parallel()
	svc, store, settings := newService(t)
	seedPack(t, settings, map[string]string{
		"Vagrantus birdus": "vagrant",
		"Commonus birdus":  "common",
	})
	addDetection(t, store, "Vagrantus birdus", true)
	addDetection(t, store, "Commonus birdus", true)

	stats, err := svc.Preview(context.Background(), datastore.StrictnessVagrant, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChecked)
	assert.Equal(t, 1, stats.TotalFiltered)
	assert.Zero(t, stats.DetectionsDeleted)
	assert.Equal(t, "vagrant", stats.StrictnessLevel)
	assert.Equal(t, "test-pack", stats.RegionPack)
	assert.False(t, stats.CompletedAt.Before(stats.StartedAt))

	// Dry run leaves the table alone.
	assert.EqualValues(t, 2, countDetections(t, store))
}

func TestRunDeletesOutOfRegionDetections(t *testing.T) {
	t.Parallel()
	svc, store, settings := newService(t)
	seedPack(t, settings, map[string]string{
		"Vagrantus birdus": "vagrant",
		"Commonus birdus":  "common",
	})
	vagrant := addDetection(t, store, "Vagrantus birdus", true)
	addDetection(t, store, "Commonus birdus", true)

	stats, err := svc.Run(context.Background(), datastore.StrictnessVagrant, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChecked)
	assert.Equal(t, 1, stats.TotalFiltered)
	assert.Equal(t, 1, stats.DetectionsDeleted)

	assert.EqualValues(t, 1, countDetections(t, store))
	_, err = store.Get(context.Background(), vagrant.ID)
	require.Error(t, err)
}

func TestDetectionWithoutCoordinatesNeverFiltered(t *testing.T) {
	t.Parallel()
	svc, store, settings := newService(t)
	seedPack(t, settings, map[string]string{"Vagrantus birdus": "vagrant"})
	addDetection(t, store, "Vagrantus birdus", false)

	stats, err := svc.Run(context.Background(), datastore.StrictnessCommon, "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChecked)
	assert.Zero(t, stats.TotalFiltered)
	assert.EqualValues(t, 1, countDetections(t, store))
}

func TestUnknownSpeciesBehavior(t *testing.T) {
	t.Parallel()

	t.Run("allow keeps unknown species", func(t *testing.T) {
		t.Parallel()
		svc, store, settings := newService(t)
		seedPack(t, settings, map[string]string{"Commonus birdus": "common"})
		addDetection(t, store, "Mysterius birdus", true)

		stats, err := svc.Run(context.Background(), datastore.StrictnessVagrant, "", false)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalFiltered)
		assert.EqualValues(t, 1, countDetections(t, store))
	})

	t.Run("block deletes unknown species", func(t *testing.T) {
		t.Parallel()
		svc, store, settings := newService(t)
		settings.Region.UnknownSpecies = "block"
		seedPack(t, settings, map[string]string{"Commonus birdus": "common"})
		addDetection(t, store, "Mysterius birdus", true)

		stats, err := svc.Run(context.Background(), datastore.StrictnessVagrant, "", false)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalFiltered)
		assert.Equal(t, 1, stats.DetectionsDeleted)
		assert.EqualValues(t, 0, countDetections(t, store))
	})
}

func TestMissingAudioFileIsNotAnError(t *testing.T) {
	t.Parallel()
	svc, store, settings := newService(t)
	seedPack(t, settings, map[string]string{"Vagrantus birdus": "vagrant"})
	addDetectionWithAudio(t, store, "Vagrantus birdus", "never-written.wav")

	stats, err := svc.Run(context.Background(), datastore.StrictnessVagrant, "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DetectionsDeleted)
	assert.Equal(t, 1, stats.AudioFilesDeleted)
	assert.Zero(t, stats.AudioDeletionErrors)
}

func TestAudioFileDeletedFromDisk(t *testing.T) {
	t.Parallel()
	svc, store, settings := newService(t)
	seedPack(t, settings, map[string]string{"Vagrantus birdus": "vagrant"})

	clip := filepath.Join(settings.Audio.RecordingsDir, "clip.wav")
	require.NoError(t, os.WriteFile(clip, []byte("RIFF"), 0o644))
	addDetectionWithAudio(t, store, "Vagrantus birdus", "clip.wav")

	stats, err := svc.Run(context.Background(), datastore.StrictnessVagrant, "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AudioFilesDeleted)
	assert.Zero(t, stats.AudioDeletionErrors)
	assert.NoFileExists(t, clip)
}

func TestAudioKeptWhenDeleteAudioDisabled(t *testing.T) {
	t.Parallel()
	svc, store, settings := newService(t)
	seedPack(t, settings, map[string]string{"Vagrantus birdus": "vagrant"})

	clip := filepath.Join(settings.Audio.RecordingsDir, "clip.wav")
	require.NoError(t, os.WriteFile(clip, []byte("RIFF"), 0o644))
	addDetectionWithAudio(t, store, "Vagrantus birdus", "clip.wav")

	stats, err := svc.Run(context.Background(), datastore.StrictnessVagrant, "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DetectionsDeleted)
	assert.Zero(t, stats.AudioFilesDeleted)
	assert.FileExists(t, clip)
}

func TestChunkedCommits(t *testing.T) {
	t.Parallel()
	svc, store, settings := newService(t)
	settings.Cleanup.CommitBatch = 1
	seedPack(t, settings, map[string]string{"Vagrantus birdus": "vagrant"})
	for i := 0; i < 3; i++ {
		addDetection(t, store, "Vagrantus birdus", true)
	}

	stats, err := svc.Run(context.Background(), datastore.StrictnessVagrant, "", false)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.DetectionsDeleted)
	assert.EqualValues(t, 0, countDetections(t, store))
}

func TestPreviewLimit(t *testing.T) {
	t.Parallel()
	svc, store, settings := newService(t)
	seedPack(t, settings, map[string]string{"Vagrantus birdus": "vagrant"})
	for i := 0; i < 5; i++ {
		addDetection(t, store, "Vagrantus birdus", true)
	}

	stats, err := svc.Preview(context.Background(), datastore.StrictnessVagrant, "", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChecked)
	assert.Equal(t, 2, stats.TotalFiltered)
}

func TestPreviewMissingPack(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)

	_, err := svc.Preview(context.Background(), datastore.StrictnessVagrant, "absent-pack", 0)
	require.Error(t, err)
}

func TestChunk(t *testing.T) {
	t.Parallel()

	dets := make([]datastore.Detection, 5)
	assert.Nil(t, chunk(nil, 2))
	assert.Len(t, chunk(dets, 0), 1)
	assert.Len(t, chunk(dets, 2), 3)
	assert.Len(t, chunk(dets, 5), 1)
	assert.Len(t, chunk(dets, 10), 1)
}
