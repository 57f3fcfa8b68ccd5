package models

import (
	"time"
)

type AuditLog struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	PatronID     *uint   `gorm:"index:idx_audit_patron_id" json:"patron_id,omitempty"`
	Patron       *Patron `gorm:"foreignKey:PatronID;references:ID" json:"patron,omitempty"`
	Action       string  `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Success      *bool   `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_log" }

// Audit action constants
const (
	AuditActionSignupInitiated     = "signup_initiated"
	AuditActionSignupFailed        = "signup_failed"
	AuditActionEmailVerified       = "email_verified"
	AuditActionVerificationFailed  = "verification_failed"
	AuditActionCardCreated         = "card_created"
	AuditActionCardCreationFailed  = "card_creation_failed"
	AuditActionCardCanceled        = "card_canceled"
	AuditActionSequenceReset       = "sequence_reset"
	AuditActionBulkUploadStarted   = "bulk_upload_started"
	AuditActionBulkUploadFinished  = "bulk_upload_finished"
	AuditActionBulkUploadFailed    = "bulk_upload_failed"
	AuditActionPinTestFailed       = "pin_test_failed"
	AuditActionLibraryCreated      = "library_created"
	AuditActionLibraryUpdated      = "library_updated"
	AuditActionWelcomeEmailFailed  = "welcome_email_failed"
	AuditActionVerifyEmailFailed   = "verification_email_failed"
	AuditActionCardNumbersAlerted  = "card_numbers_alerted"
	AuditActionCardNumbersAlertErr = "card_numbers_alert_failed"
	AuditActionExpiryReminderSent  = "expiry_reminder_sent"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	PatronID      *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
