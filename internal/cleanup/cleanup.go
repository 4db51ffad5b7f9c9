// Package cleanup removes detections that fall outside the configured
// regional strictness, optionally deleting their audio clips.
package cleanup

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/uber/h3-go/v4"

	"github.com/tphakala/taxondb/internal/conf"
	"github.com/tphakala/taxondb/internal/datastore"
	"github.com/tphakala/taxondb/internal/errors"
	"github.com/tphakala/taxondb/internal/logging"
	"github.com/tphakala/taxondb/internal/observability/metrics"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	levelVar   = new(slog.LevelVar)
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		var err error
		logger, _, err = logging.NewFileLogger("logs/cleanup.log", "cleanup", levelVar)
		if err != nil || logger == nil {
			logger = logging.ForService("cleanup")
		}
		if logger == nil {
			logger = logging.NewDiscardLogger("cleanup")
		}
	})
	return logger
}

// CleanupStats aggregates the result of one preview or cleanup run.
type CleanupStats struct {
	TotalChecked        int       `json:"total_checked"`
	TotalFiltered       int       `json:"total_filtered"`
	DetectionsDeleted   int       `json:"detections_deleted"`
	AudioFilesDeleted   int       `json:"audio_files_deleted"`
	AudioDeletionErrors int       `json:"audio_deletion_errors"`
	StrictnessLevel     string    `json:"strictness_level"`
	RegionPack          string    `json:"region_pack"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
}

// Store is the slice of the datastore the cleanup service consumes.
type Store interface {
	WithRegionPack(ctx context.Context, pack string, fn func(*datastore.RegionSession) error) error
	GetFilterCandidates(ctx context.Context, limit int) ([]datastore.Detection, error)
	DeleteDetections(ctx context.Context, detections []datastore.Detection, removeAudio func(path string) error) (datastore.DeletionOutcome, error)
}

// Service runs regional cleanup passes against a datastore.
type Service struct {
	store    Store
	settings *conf.Settings
	metrics  *metrics.CleanupMetrics
}

// New creates a cleanup service.
func New(store Store, settings *conf.Settings) *Service {
	return &Service{store: store, settings: settings}
}

// SetMetrics installs the Prometheus metrics recorder. Safe to leave unset.
func (s *Service) SetMetrics(m *metrics.CleanupMetrics) {
	s.metrics = m
}

func (s *Service) newStats(strictness datastore.Strictness, pack string) *CleanupStats {
	if pack == "" {
		pack = s.settings.Region.Pack
	}
	return &CleanupStats{
		StrictnessLevel: string(strictness),
		RegionPack:      pack,
		StartedAt:       time.Now(),
	}
}

// Preview is a read-only dry run: it counts how many detections the given
// strictness would remove without deleting anything.
func (s *Service) Preview(ctx context.Context, strictness datastore.Strictness, pack string, limit int) (*CleanupStats, error) {
	stats := s.newStats(strictness, pack)
	start := time.Now()

	err := s.store.WithRegionPack(ctx, pack, func(rs *datastore.RegionSession) error {
		candidates, err := s.store.GetFilterCandidates(ctx, limit)
		if err != nil {
			return err
		}
		for i := range candidates {
			stats.TotalChecked++
			filtered, err := s.shouldFilterDetection(rs, &candidates[i], strictness)
			if err != nil {
				return err
			}
			if filtered {
				stats.TotalFiltered++
			}
		}
		return nil
	})
	stats.CompletedAt = time.Now()
	if err != nil {
		s.metrics.RecordRun("preview", "error", time.Since(start).Seconds())
		return nil, err
	}

	s.metrics.RecordRun("preview", "success", time.Since(start).Seconds())
	getLogger().Info("cleanup preview finished",
		"strictness", stats.StrictnessLevel,
		"pack", stats.RegionPack,
		"checked", stats.TotalChecked,
		"filtered", stats.TotalFiltered)
	return stats, nil
}

// Run deletes every detection the strictness filters out. Deletions commit
// once at the end unless cleanup.commitbatch chunks them; an interrupted
// unchunked run leaves no partial deletions behind.
func (s *Service) Run(ctx context.Context, strictness datastore.Strictness, pack string, deleteAudio bool) (*CleanupStats, error) {
	stats := s.newStats(strictness, pack)
	start := time.Now()

	err := s.store.WithRegionPack(ctx, pack, func(rs *datastore.RegionSession) error {
		candidates, err := s.store.GetFilterCandidates(ctx, s.settings.Cleanup.Limit)
		if err != nil {
			return err
		}

		var flagged []datastore.Detection
		for i := range candidates {
			stats.TotalChecked++
			filtered, err := s.shouldFilterDetection(rs, &candidates[i], strictness)
			if err != nil {
				return err
			}
			if filtered {
				stats.TotalFiltered++
				flagged = append(flagged, candidates[i])
			}
		}

		var removeAudio func(path string) error
		if deleteAudio {
			removeAudio = s.removeAudioFile
		}

		for _, batch := range chunk(flagged, s.settings.Cleanup.CommitBatch) {
			outcome, err := s.store.DeleteDetections(ctx, batch, removeAudio)
			if err != nil {
				return err
			}
			stats.DetectionsDeleted += outcome.DetectionsDeleted
			stats.AudioFilesDeleted += outcome.AudioFilesDeleted
			stats.AudioDeletionErrors += outcome.AudioDeletionErrors
		}
		return nil
	})
	stats.CompletedAt = time.Now()
	if err != nil {
		s.metrics.RecordRun("delete", "error", time.Since(start).Seconds())
		return nil, errors.New(err).
			Component("cleanup").
			Category(errors.CategoryDiskCleanup).
			Context("strictness", string(strictness)).
			Build()
	}

	s.metrics.RecordRun("delete", "success", time.Since(start).Seconds())
	s.metrics.RecordDeletions(stats.DetectionsDeleted, stats.AudioFilesDeleted, stats.AudioDeletionErrors)
	getLogger().Info("cleanup run finished",
		"strictness", stats.StrictnessLevel,
		"pack", stats.RegionPack,
		"checked", stats.TotalChecked,
		"deleted", stats.DetectionsDeleted,
		"audio_deleted", stats.AudioFilesDeleted,
		"audio_errors", stats.AudioDeletionErrors)
	return stats, nil
}

// shouldFilterDetection decides whether one detection falls outside the
// region at the given strictness. Detections without coordinates are never
// filtered; a species unknown to the pack follows the configured
// unknown-species behavior.
func (s *Service) shouldFilterDetection(rs *datastore.RegionSession, d *datastore.Detection, strictness datastore.Strictness) (bool, error) {
	if d.Latitude == nil || d.Longitude == nil {
		return false, nil
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(*d.Latitude, *d.Longitude), s.settings.Region.H3Resolution)
	if err != nil {
		getLogger().Warn("failed to derive H3 cell, keeping detection",
			"id", d.ID, "lat", *d.Latitude, "lon", *d.Longitude, "error", err)
		return false, nil
	}

	tier, found, err := rs.ConfidenceTier(d.ScientificName, uint64(cell))
	if err != nil {
		return false, err
	}
	if !found {
		return s.settings.Region.UnknownSpecies == "block", nil
	}
	return !datastore.TierAllowed(tier, strictness), nil
}

// removeAudioFile deletes a clip from disk, resolving relative paths
// against the recordings directory. A file that is already gone is not an
// error.
func (s *Service) removeAudioFile(path string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.settings.Audio.RecordingsDir, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// chunk splits detections into commit batches. A size of 0 keeps the whole
// run in one transaction.
func chunk(detections []datastore.Detection, size int) [][]datastore.Detection {
	if len(detections) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]datastore.Detection{detections}
	}
	var batches [][]datastore.Detection
	for start := 0; start < len(detections); start += size {
		end := min(start+size, len(detections))
		batches = append(batches, detections[start:end])
	}
	return batches
}
