// Package models contains domain entities and business models for the library card system
package models

import (
	"time"

	"github.com/google/uuid"
)

// Card numbering strategies a library can be configured with.
const (
	NumberingModeSequence = "sequence"
	NumberingModeRandom   = "random"
)

type Library struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_libraries_uuid" json:"uuid"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Identifier string    `gorm:"size:255;not null;uniqueIndex:uk_libraries_identifier" json:"identifier"`

	Phone              *string `gorm:"size:50" json:"phone,omitempty"`
	Email              *string `gorm:"size:255" json:"email,omitempty"`
	TermsConditionsURL string  `gorm:"size:255" json:"terms_conditions_url"`
	PrivacyURL         string  `gorm:"size:255" json:"privacy_url"`

	// Card numbering. Prefix plus the generated suffix always total 14 characters.
	Prefix              string `gorm:"size:10;not null" json:"prefix"`
	NumberingMode       string `gorm:"size:16;not null;default:random" json:"numbering_mode"`
	SequenceStartNumber int64  `gorm:"not null;default:0" json:"sequence_start_number"`
	SequenceEndNumber   *int64 `json:"sequence_end_number,omitempty"`
	SequenceDown        *bool  `gorm:"default:false" json:"sequence_down"`

	// Bulk upload settings
	BulkUploadPrefix     *string `gorm:"size:10" json:"bulk_upload_prefix,omitempty"`
	AllowBulkCardUploads *bool   `gorm:"default:false" json:"allow_bulk_card_uploads"`

	// Patron-facing configurables
	CardValidityMonths       *uint  `json:"card_validity_months,omitempty"`
	PatronAddressMandatory   *bool  `gorm:"default:true" json:"patron_address_mandatory"`
	AgeVerificationMandatory *bool  `gorm:"default:true" json:"age_verification_mandatory"`
	BarcodeText              string `gorm:"size:255;default:barcode" json:"barcode_text"`
	PinText                  string `gorm:"size:255;default:pin" json:"pin_text"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Cards   []LibraryCard  `gorm:"foreignKey:LibraryID" json:"-"`
	Patrons []Patron       `gorm:"foreignKey:LibraryID" json:"-"`
	Places  []LibraryPlace `gorm:"foreignKey:LibraryID" json:"-"`
}

func (Library) TableName() string { return "libraries" }

// LibraryFilter represents filter criteria for library queries
type LibraryFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Identifier    *string
	Name          *string
	Prefix        *string
	NumberingMode *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (l *Library) IsSequential() bool {
	return l.NumberingMode == NumberingModeSequence
}

func (l *Library) IsDescending() bool {
	return l.SequenceDown != nil && *l.SequenceDown
}
