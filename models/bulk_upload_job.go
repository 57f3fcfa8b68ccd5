package models

import (
	"time"

	"github.com/google/uuid"
)

// Bulk upload job statuses
const (
	BulkUploadStatusPending = "pending"
	BulkUploadStatusRunning = "running"
	BulkUploadStatusDone    = "done"
	BulkUploadStatusFailed  = "failed"
)

// BulkUploadJob records the outcome of an out-of-band CSV/XLSX card upload.
// The processing itself runs on a fire-and-forget goroutine; this row is the
// only durable trace an admin can consult afterwards.
type BulkUploadJob struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_bulk_upload_jobs_uuid" json:"uuid"`

	LibraryID uint     `gorm:"not null;index:idx_bulk_upload_jobs_library_id" json:"library_id"`
	Library   *Library `gorm:"foreignKey:LibraryID;references:ID" json:"-"`

	AdminPatronID *uint   `json:"admin_patron_id,omitempty"`
	AdminPatron   *Patron `gorm:"foreignKey:AdminPatronID;references:ID" json:"-"`

	Status       string  `gorm:"size:16;not null;default:pending;index:idx_bulk_upload_jobs_status" json:"status"`
	TotalRows    int     `json:"total_rows"`
	SucceededRow int     `json:"succeeded_rows"`
	FailedRows   int     `json:"failed_rows"`
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (BulkUploadJob) TableName() string { return "bulk_upload_jobs" }

// BulkUploadJobFilter represents filter criteria for bulk upload job queries
type BulkUploadJobFilter struct {
	ID        *uint
	UUID      *uuid.UUID
	LibraryID *uint
	Status    *string
}
