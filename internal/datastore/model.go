package datastore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AudioFile represents a recorded clip referenced by one or more detections.
type AudioFile struct {
	ID              uint   `gorm:"primaryKey"`
	Path            string `gorm:"uniqueIndex;not null"`
	DurationSeconds float64
	SizeBytes       int64
	CreatedAt       time.Time
}

// Detection represents a single inference result stored in the primary
// database. IDs are UUID strings assigned on insert.
type Detection struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	ScientificName string    `gorm:"index;index:idx_detections_species_time,priority:1;not null"`
	CommonName     string    // common name as known at insert time
	Confidence     float64   `gorm:"index"`
	Timestamp      time.Time `gorm:"index;index:idx_detections_species_time,priority:2"`
	Week           int       // ISO week of the detection, used by frequency models

	// Station coordinates at detection time, nil when the station has no
	// configured location.
	Latitude  *float64
	Longitude *float64

	// Inference parameters in effect when the detection was made.
	Threshold   float64 // species confidence threshold
	Sensitivity float64
	Overlap     float64

	AudioFileID *uint `gorm:"index"`
	AudioFile   *AudioFile

	// Weather snapshot linkage, populated when a weather provider runs.
	WeatherTimestamp *time.Time
	HourEpoch        *int64 `gorm:"index"`
}

// BeforeCreate assigns a UUID primary key when none was provided.
func (d *Detection) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// DetectionWithTaxa is a detection enriched with taxonomy from the attached
// reference databases. Enrichment fields stay empty when the corresponding
// source database is not available.
type DetectionWithTaxa struct {
	Detection

	// IOC taxonomy, empty when the IOC database is unavailable or the
	// species is not in it.
	IOCEnglishName string
	Genus          string
	Family         string
	OrderName      string

	// TranslatedName is the best common name for the configured language,
	// resolved through the IOC, PatLevin and Avibase sources in that order.
	TranslatedName string

	// First-detection flags, nil unless the query requested them.
	IsFirstEver          *bool
	IsFirstInPeriod      *bool
	FirstEverDetection   *time.Time
	FirstPeriodDetection *time.Time
}

// DisplayName returns the best available name for presenting this detection:
// the translated name, the name stored at detection time, or the scientific
// name when nothing else is known.
func (d *DetectionWithTaxa) DisplayName() string {
	if d.TranslatedName != "" {
		return d.TranslatedName
	}
	if d.CommonName != "" {
		return d.CommonName
	}
	return d.ScientificName
}

// SpeciesCount is one row of the per-species detection summary.
type SpeciesCount struct {
	ScientificName string
	CommonName     string
	Count          int64
	FirstSeen      time.Time
	LastSeen       time.Time
}

// StorageMetrics summarizes database, audio and disk usage.
type StorageMetrics struct {
	DatabasePath    string
	DatabaseBytes   int64
	DiskTotalBytes  uint64
	DiskUsedBytes   uint64
	DiskUsedPercent float64

	AudioFileCount       int64
	AudioBytes           int64
	AudioDurationSeconds float64
}

// DeletionOutcome aggregates the result of one DeleteDetections call.
type DeletionOutcome struct {
	DetectionsDeleted   int
	AudioFilesDeleted   int
	AudioDeletionErrors int
}
