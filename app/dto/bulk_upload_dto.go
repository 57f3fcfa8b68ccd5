package dto

import "time"

// BulkUploadResponse acknowledges an accepted upload; processing continues
// in the background and the outcome is e-mailed to the requesting admin.
type BulkUploadResponse struct {
	Message   string `json:"message"`
	JobUUID   string `json:"job_uuid"`
	TotalRows int    `json:"total_rows"`
}

// BulkUploadRowResult is the per-row outcome of a bulk card upload
type BulkUploadRowResult struct {
	RowNumber  int    `json:"row_number"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	CardNumber string `json:"card_number,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BulkUploadJobDTO represents a bulk upload job for API responses
type BulkUploadJobDTO struct {
	UUID         string     `json:"uuid"`
	LibraryID    uint       `json:"library_id"`
	Status       string     `json:"status"`
	TotalRows    int        `json:"total_rows"`
	SucceededRow int        `json:"succeeded_rows"`
	FailedRows   int        `json:"failed_rows"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
