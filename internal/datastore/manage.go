package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// GetFilterCandidates returns detections for a regional cleanup pass in
// timestamp order. A limit of 0 returns all detections.
func (ds *DataStore) GetFilterCandidates(ctx context.Context, limit int) ([]Detection, error) {
	if limit < 0 {
		return nil, validationError("filter_candidates", "limit must not be negative")
	}

	tx := ds.DB.WithContext(ctx).Order("timestamp ASC, id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var detections []Detection
	if err := tx.Find(&detections).Error; err != nil {
		return nil, dbError(err, "filter_candidates", "failed to load cleanup candidates")
	}
	return detections, nil
}

// DeleteDetections removes the given detections in a single transaction.
// For each deleted detection that held the last reference to an AudioFile,
// removeAudio is called with the file's stored path before the row is
// deleted. A non-nil error from removeAudio counts as an audio deletion
// error, keeps the AudioFile row, and does not abort the run. Detection
// rows are deleted regardless of audio outcomes.
func (ds *DataStore) DeleteDetections(ctx context.Context, detections []Detection, removeAudio func(path string) error) (DeletionOutcome, error) {
	var outcome DeletionOutcome
	if len(detections) == 0 {
		return outcome, nil
	}

	start := time.Now()
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range detections {
			d := &detections[i]

			res := tx.Delete(&Detection{}, "id = ?", d.ID)
			if res.Error != nil {
				return dbError(res.Error, "delete_detections", "failed to delete detection", "id", d.ID)
			}
			if res.RowsAffected == 0 {
				continue
			}
			outcome.DetectionsDeleted++

			if d.AudioFileID == nil || removeAudio == nil {
				continue
			}

			var refs int64
			err := tx.Model(&Detection{}).Where("audio_file_id = ?", *d.AudioFileID).Count(&refs).Error
			if err != nil {
				return dbError(err, "delete_detections", "failed to count audio references", "audio_file_id", *d.AudioFileID)
			}
			if refs > 0 {
				// Another detection still references the clip.
				continue
			}

			var audio AudioFile
			err = tx.First(&audio, *d.AudioFileID).Error
			if errorsIs(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return dbError(err, "delete_detections", "failed to load audio file", "audio_file_id", *d.AudioFileID)
			}

			if err := removeAudio(audio.Path); err != nil {
				outcome.AudioDeletionErrors++
				getLogger().Warn("failed to delete audio file", "path", audio.Path, "error", err)
				continue
			}

			if err := tx.Delete(&audio).Error; err != nil {
				return dbError(err, "delete_detections", "failed to delete audio file row", "audio_file_id", audio.ID)
			}
			outcome.AudioFilesDeleted++
		}
		return nil
	})
	if err != nil {
		ds.metrics.RecordDbOperation("delete_detections", "error")
		return DeletionOutcome{}, err
	}

	ds.metrics.RecordDbOperation("delete_detections", "success")
	ds.metrics.RecordDbOperationDuration("delete_detections", time.Since(start).Seconds())
	return outcome, nil
}
