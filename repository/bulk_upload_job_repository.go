package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/virtuallibrarycard/vlc/models"
	"gorm.io/gorm"
)

// BulkUploadJobRepositoryImpl implements BulkUploadJobRepository interface
type BulkUploadJobRepositoryImpl struct {
	*BaseRepository[models.BulkUploadJob, models.BulkUploadJobFilter]
}

// NewBulkUploadJobRepository creates a new bulk upload job repository
func NewBulkUploadJobRepository(db *gorm.DB) BulkUploadJobRepository {
	return &BulkUploadJobRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BulkUploadJob, models.BulkUploadJobFilter](db, applyBulkUploadJobFilter),
	}
}

func applyBulkUploadJobFilter(db *gorm.DB, filter models.BulkUploadJobFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.LibraryID != nil {
		db = db.Where("library_id = ?", *filter.LibraryID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}

// UpdateStatus records the progress or final outcome of a job
func (r *BulkUploadJobRepositoryImpl) UpdateStatus(ctx context.Context, jobID uint, status string, succeeded, failed int, errMsg *string) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	updates := map[string]any{
		"status":        status,
		"succeeded_row": succeeded,
		"failed_rows":   failed,
		"error_message": errMsg,
	}
	if status == models.BulkUploadStatusDone || status == models.BulkUploadStatusFailed {
		updates["finished_at"] = time.Now()
	}

	err = db.Model(&models.BulkUploadJob{}).
		Where("id = ?", jobID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update bulk upload job %d: %w", jobID, err)
	}

	return nil
}

// FailStaleRunning marks running jobs created before olderThan as failed.
// Processing is in-process, so a job still "running" long after creation
// belongs to an instance that crashed or was restarted mid-upload.
func (r *BulkUploadJobRepositoryImpl) FailStaleRunning(ctx context.Context, olderThan time.Time, errMsg string) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	res := db.Model(&models.BulkUploadJob{}).
		Where("status IN ?", []string{models.BulkUploadStatusPending, models.BulkUploadStatusRunning}).
		Where("created_at < ?", olderThan).
		Updates(map[string]any{
			"status":        models.BulkUploadStatusFailed,
			"error_message": errMsg,
			"finished_at":   time.Now(),
		})
	if res.Error != nil {
		err = res.Error
		return 0, fmt.Errorf("failed to fail stale bulk upload jobs: %w", err)
	}

	return res.RowsAffected, nil
}
