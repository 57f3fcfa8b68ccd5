package dto

import "time"

// CreateLibraryRequest represents the admin form for creating a library
type CreateLibraryRequest struct {
	Name       string `json:"name" validate:"required,max=255"`
	Identifier string `json:"identifier" validate:"required,max=255,alphanum"`

	Phone              *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email              *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	TermsConditionsURL string  `json:"terms_conditions_url" validate:"omitempty,url,max=255"`
	PrivacyURL         string  `json:"privacy_url" validate:"omitempty,url,max=255"`

	Prefix              string `json:"prefix" validate:"required,max=10,alphanum"`
	NumberingMode       string `json:"numbering_mode" validate:"required,oneof=sequence random"`
	SequenceStartNumber int64  `json:"sequence_start_number" validate:"min=0"`
	SequenceEndNumber   *int64 `json:"sequence_end_number,omitempty" validate:"omitempty,min=0"`
	SequenceDown        *bool  `json:"sequence_down,omitempty"`

	BulkUploadPrefix     *string `json:"bulk_upload_prefix,omitempty" validate:"omitempty,max=10,alphanum"`
	AllowBulkCardUploads *bool   `json:"allow_bulk_card_uploads,omitempty"`

	CardValidityMonths       *uint  `json:"card_validity_months,omitempty" validate:"omitempty,min=1,max=240"`
	PatronAddressMandatory   *bool  `json:"patron_address_mandatory,omitempty"`
	AgeVerificationMandatory *bool  `json:"age_verification_mandatory,omitempty"`
	BarcodeText              string `json:"barcode_text" validate:"omitempty,max=255"`
	PinText                  string `json:"pin_text" validate:"omitempty,max=255"`

	// US state abbreviations served by the library
	States []string `json:"states,omitempty" validate:"omitempty,dive,len=2"`
}

// UpdateLibraryRequest represents a partial library update; nil fields are
// left unchanged
type UpdateLibraryRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,max=255"`

	Phone              *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email              *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	TermsConditionsURL *string `json:"terms_conditions_url,omitempty" validate:"omitempty,url,max=255"`
	PrivacyURL         *string `json:"privacy_url,omitempty" validate:"omitempty,url,max=255"`

	Prefix              *string `json:"prefix,omitempty" validate:"omitempty,max=10,alphanum"`
	NumberingMode       *string `json:"numbering_mode,omitempty" validate:"omitempty,oneof=sequence random"`
	SequenceStartNumber *int64  `json:"sequence_start_number,omitempty" validate:"omitempty,min=0"`
	SequenceEndNumber   *int64  `json:"sequence_end_number,omitempty" validate:"omitempty,min=0"`
	SequenceDown        *bool   `json:"sequence_down,omitempty"`

	BulkUploadPrefix     *string `json:"bulk_upload_prefix,omitempty" validate:"omitempty,max=10,alphanum"`
	AllowBulkCardUploads *bool   `json:"allow_bulk_card_uploads,omitempty"`

	CardValidityMonths       *uint   `json:"card_validity_months,omitempty" validate:"omitempty,min=1,max=240"`
	PatronAddressMandatory   *bool   `json:"patron_address_mandatory,omitempty"`
	AgeVerificationMandatory *bool   `json:"age_verification_mandatory,omitempty"`
	BarcodeText              *string `json:"barcode_text,omitempty" validate:"omitempty,max=255"`
	PinText                  *string `json:"pin_text,omitempty" validate:"omitempty,max=255"`

	States []string `json:"states,omitempty" validate:"omitempty,dive,len=2"`
}

// LibraryDTO represents library data for API responses
type LibraryDTO struct {
	ID                   uint      `json:"id"`
	UUID                 string    `json:"uuid"`
	Name                 string    `json:"name"`
	Identifier           string    `json:"identifier"`
	Phone                *string   `json:"phone,omitempty"`
	Email                *string   `json:"email,omitempty"`
	TermsConditionsURL   string    `json:"terms_conditions_url"`
	PrivacyURL           string    `json:"privacy_url"`
	Prefix               string    `json:"prefix"`
	NumberingMode        string    `json:"numbering_mode"`
	SequenceStartNumber  int64     `json:"sequence_start_number"`
	SequenceEndNumber    *int64    `json:"sequence_end_number,omitempty"`
	SequenceDown         bool      `json:"sequence_down"`
	BulkUploadPrefix     *string   `json:"bulk_upload_prefix,omitempty"`
	AllowBulkCardUploads bool      `json:"allow_bulk_card_uploads"`
	CardValidityMonths   *uint     `json:"card_validity_months,omitempty"`
	BarcodeText          string    `json:"barcode_text"`
	PinText              string    `json:"pin_text"`
	States               []string  `json:"states,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// LibraryResponse wraps a single library
type LibraryResponse struct {
	Message string     `json:"message"`
	Library LibraryDTO `json:"library"`
}

// ListLibrariesResponse wraps a page of libraries
type ListLibrariesResponse struct {
	Message   string       `json:"message"`
	Libraries []LibraryDTO `json:"libraries"`
	Total     int64        `json:"total"`
}
