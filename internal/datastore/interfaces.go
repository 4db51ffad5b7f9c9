// Package datastore provides the SQLite data access layer: detection
// storage, cross-database taxonomy enrichment via ATTACH, regional
// confidence lookups and analytics summaries.
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/taxondb/internal/conf"
	"github.com/tphakala/taxondb/internal/observability/metrics"
)

// Metrics is the Prometheus metrics set recorded by the datastore.
type Metrics = metrics.DatastoreMetrics

// Interface defines the operations the datastore exposes to the rest of
// the application.
type Interface interface {
	Open() error
	Close() error

	Save(ctx context.Context, detection *Detection) error
	Get(ctx context.Context, id string) (Detection, error)

	QueryDetections(ctx context.Context, filters *DetectionFilters) ([]DetectionWithTaxa, error)
	QueryBestRecordingsPerSpecies(ctx context.Context, q *BestRecordingsQuery) ([]DetectionWithTaxa, int64, error)

	GetBestCommonName(ctx context.Context, scientificName, language string) (CommonNameResult, error)
	GetAllTranslations(ctx context.Context, scientificName string) (map[string][]TranslationEntry, error)

	GetSpeciesConfidenceTier(ctx context.Context, pack, scientificName, cellHex string) (ConfidenceTier, bool, error)
	GetConfidenceBoost(ctx context.Context, pack, scientificName, cellHex string) (float64, bool, error)
	IsSpeciesInRegion(ctx context.Context, pack, scientificName, cellHex string) (bool, error)
	GetAllowedSpeciesForLocation(ctx context.Context, pack, cellHex string, strictness Strictness) (map[string]struct{}, error)
	WithRegionPack(ctx context.Context, pack string, fn func(*RegionSession) error) error

	GetDetectionCount(ctx context.Context, start, end *time.Time) (int64, error)
	GetUniqueSpeciesCount(ctx context.Context, start, end *time.Time) (int64, error)
	GetSpeciesCounts(ctx context.Context, start, end *time.Time) ([]SpeciesCount, error)
	GetHourlyCounts(ctx context.Context, start, end *time.Time) ([24]int64, error)
	GetStorageMetrics(ctx context.Context) (*StorageMetrics, error)

	GetFilterCandidates(ctx context.Context, limit int) ([]Detection, error)
	DeleteDetections(ctx context.Context, detections []Detection, removeAudio func(path string) error) (DeletionOutcome, error)
}

var _ Interface = (*SQLiteStore)(nil)

// DataStore implements Interface using GORM on SQLite.
type DataStore struct {
	DB       *gorm.DB
	Settings *conf.Settings

	cache   Cache
	metrics *Metrics
}

// New creates a datastore for the configured database. Open must be called
// before use.
func New(settings *conf.Settings) *SQLiteStore {
	return &SQLiteStore{DataStore: DataStore{Settings: settings}}
}

// SetCache installs an analytics result cache. A nil cache disables caching.
func (ds *DataStore) SetCache(c Cache) {
	ds.cache = c
}

// SetMetrics installs the Prometheus metrics recorder. Safe to leave unset.
func (ds *DataStore) SetMetrics(m *Metrics) {
	ds.metrics = m
}

// language returns the configured display language, defaulting to English.
func (ds *DataStore) language() string {
	if ds.Settings != nil && ds.Settings.Taxonomy.Language != "" {
		return normalizeLanguage(ds.Settings.Taxonomy.Language)
	}
	return "en"
}

// Save stores a detection, assigning its UUID when absent.
func (ds *DataStore) Save(ctx context.Context, detection *Detection) error {
	start := time.Now()
	if err := ds.DB.WithContext(ctx).Create(detection).Error; err != nil {
		ds.metrics.RecordDbOperation("save", "error")
		return dbError(err, "save", "failed to save detection")
	}
	ds.metrics.RecordDbOperation("save", "success")
	ds.metrics.RecordDbOperationDuration("save", time.Since(start).Seconds())
	return nil
}

// Get retrieves a single detection by its UUID.
func (ds *DataStore) Get(ctx context.Context, id string) (Detection, error) {
	var detection Detection
	err := ds.DB.WithContext(ctx).Preload("AudioFile").First(&detection, "id = ?", id).Error
	if err != nil {
		if errorsIs(err, gorm.ErrRecordNotFound) {
			return Detection{}, notFoundError("detection", id)
		}
		return Detection{}, dbError(err, "get", "failed to get detection")
	}
	return detection, nil
}
