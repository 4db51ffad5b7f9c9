package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"gorm.io/gorm"

	"github.com/tphakala/taxondb/internal/errors"
)

// timeRange applies inclusive start/end bounds to a detections query.
func timeRange(tx *gorm.DB, start, end *time.Time) *gorm.DB {
	if start != nil {
		tx = tx.Where("timestamp >= ?", *start)
	}
	if end != nil {
		tx = tx.Where("timestamp <= ?", *end)
	}
	return tx
}

func rangeKey(operation string, start, end *time.Time) string {
	s, e := "-", "-"
	if start != nil {
		s = start.UTC().Format(time.RFC3339)
	}
	if end != nil {
		e = end.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s:%s:%s", operation, s, e)
}

func (ds *DataStore) cacheTTL() time.Duration {
	if ds.Settings != nil && ds.Settings.Cache.TTLSeconds > 0 {
		return time.Duration(ds.Settings.Cache.TTLSeconds) * time.Second
	}
	return time.Minute
}

// GetDetectionCount returns the number of detections in the time window.
func (ds *DataStore) GetDetectionCount(ctx context.Context, start, end *time.Time) (int64, error) {
	var count int64
	err := timeRange(ds.DB.WithContext(ctx).Model(&Detection{}), start, end).Count(&count).Error
	if err != nil {
		return 0, dbError(err, "detection_count", "failed to count detections")
	}
	return count, nil
}

// GetUniqueSpeciesCount returns the number of distinct species detected in
// the time window.
func (ds *DataStore) GetUniqueSpeciesCount(ctx context.Context, start, end *time.Time) (int64, error) {
	var count int64
	err := timeRange(ds.DB.WithContext(ctx).Model(&Detection{}), start, end).
		Distinct("scientific_name").Count(&count).Error
	if err != nil {
		return 0, dbError(err, "unique_species_count", "failed to count species")
	}
	return count, nil
}

// GetSpeciesCounts summarizes detections per species in the time window,
// most detected first. Results are cached briefly; dashboards poll this.
func (ds *DataStore) GetSpeciesCounts(ctx context.Context, start, end *time.Time) ([]SpeciesCount, error) {
	key := rangeKey("species_counts", start, end)
	return cached(ds, "species_counts", key, ds.cacheTTL(), func() ([]SpeciesCount, error) {
		var counts []SpeciesCount
		err := timeRange(ds.DB.WithContext(ctx).Model(&Detection{}), start, end).
			Select("scientific_name, MAX(common_name) AS common_name, COUNT(*) AS count, MIN(timestamp) AS first_seen, MAX(timestamp) AS last_seen").
			Group("scientific_name").
			Order("count DESC, scientific_name ASC").
			Scan(&counts).Error
		if err != nil {
			return nil, dbError(err, "species_counts", "failed to aggregate species counts")
		}
		return counts, nil
	})
}

// GetHourlyCounts returns detection counts bucketed by hour of day for the
// time window.
func (ds *DataStore) GetHourlyCounts(ctx context.Context, start, end *time.Time) ([24]int64, error) {
	key := rangeKey("hourly_counts", start, end)
	return cached(ds, "hourly_counts", key, ds.cacheTTL(), func() ([24]int64, error) {
		type hourCount struct {
			Hour  int
			Count int64
		}
		var rows []hourCount
		err := timeRange(ds.DB.WithContext(ctx).Model(&Detection{}), start, end).
			Select("CAST(strftime('%H', timestamp) AS INTEGER) AS hour, COUNT(*) AS count").
			Group("hour").
			Scan(&rows).Error
		if err != nil {
			return [24]int64{}, dbError(err, "hourly_counts", "failed to aggregate hourly counts")
		}

		var counts [24]int64
		for _, r := range rows {
			if r.Hour >= 0 && r.Hour < 24 {
				counts[r.Hour] = r.Count
			}
		}
		return counts, nil
	})
}

// GetStorageMetrics reports database file size and disk usage of the
// volume holding it.
func (ds *DataStore) GetStorageMetrics(ctx context.Context) (*StorageMetrics, error) {
	path := ds.Settings.Database.Path

	m := &StorageMetrics{DatabasePath: path}
	if info, err := os.Stat(path); err == nil {
		m.DatabaseBytes = info.Size()
	}

	type audioTotals struct {
		Count    int64
		Bytes    int64
		Duration float64
	}
	var totals audioTotals
	err := ds.DB.WithContext(ctx).Model(&AudioFile{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size_bytes), 0) AS bytes, COALESCE(SUM(duration_seconds), 0) AS duration").
		Scan(&totals).Error
	if err != nil {
		return nil, dbError(err, "storage_metrics", "failed to aggregate audio totals")
	}
	m.AudioFileCount = totals.Count
	m.AudioBytes = totals.Bytes
	m.AudioDurationSeconds = totals.Duration

	dir := filepath.Dir(path)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return nil, errors.Newf("failed to read disk usage for %s: %w", dir, err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("operation", "storage_metrics").
			Build()
	}
	m.DiskTotalBytes = usage.Total
	m.DiskUsedBytes = usage.Used
	m.DiskUsedPercent = usage.UsedPercent

	return m, nil
}
