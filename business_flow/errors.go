// Package businessflow contains the core business logic and use cases for patron and card workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Patron-related errors
	ErrPatronNotFound      = errors.New("patron not found")
	ErrEmailAlreadyExists  = errors.New("email already exists")
	ErrEmailNotVerified    = errors.New("email is not verified")
	ErrIncorrectPin        = errors.New("incorrect PIN")
	ErrAlreadyVerified     = errors.New("already verified")
	ErrAddressRequired     = errors.New("address fields are required for this library")
	ErrAgeConsentRequired  = errors.New("age verification consent is required for this library")
	ErrPlaceNotEligible    = errors.New("address is outside the areas served by this library")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrInvalidCaptcha      = errors.New("captcha verification failed")
	ErrCaptchaNotAvailable = errors.New("captcha challenge not available")

	// Library-related errors
	ErrLibraryNotFound        = errors.New("library not found")
	ErrLibraryIdentifierTaken = errors.New("library identifier already in use")
	ErrPrefixRequired         = errors.New("library prefix is required")
	ErrPrefixTooLong          = errors.New("your library prefix is too long.")
	ErrInvalidNumberingMode   = errors.New("invalid card numbering mode")
	ErrInvalidSequenceBounds  = errors.New("sequence end number must be greater than start number")

	// Card-related errors
	ErrCardNotFound         = errors.New("library card not found")
	ErrCardAlreadyCanceled  = errors.New("library card is already canceled")
	ErrCardNumberExhausted  = errors.New("could not create a unique card number")
	ErrCardNumberProfane    = errors.New("card number rejected by profanity filter")
	ErrCardNumberDuplicate  = errors.New("card number already exists for this library")
	ErrCardNumberUnassigned = errors.New("card has no number assigned")

	// Bulk upload errors
	ErrBulkUploadsDisabled      = errors.New("bulk card uploads are not enabled for this library")
	ErrBulkUploadPrefixMissing  = errors.New("library has no bulk upload prefix configured")
	ErrBulkUploadHeadersMissing = errors.New("required columns are missing")
	ErrBulkUploadHeaderDup      = errors.New("duplicate columns in upload file")
	ErrBulkUploadDuplicateRows  = errors.New("upload file contains duplicate ids or emails")
	ErrBulkUploadTooManyRows    = errors.New("upload file has too many rows")
	ErrBulkUploadEmptyFile      = errors.New("upload file contains no data rows")
	ErrBulkUploadBadFormat      = errors.New("upload file must be a .csv or .xlsx file")
	ErrBulkUploadJobNotFound    = errors.New("bulk upload job not found")

	// PATRONAPI errors
	ErrMissingParams = errors.New("missing required parameters")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsPatronNotFound(err error) bool {
	return errors.Is(err, ErrPatronNotFound)
}

func IsEmailAlreadyExists(err error) bool {
	return errors.Is(err, ErrEmailAlreadyExists)
}

func IsEmailNotVerified(err error) bool {
	return errors.Is(err, ErrEmailNotVerified)
}

func IsIncorrectPin(err error) bool {
	return errors.Is(err, ErrIncorrectPin)
}

func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

func IsInvalidCaptcha(err error) bool {
	return errors.Is(err, ErrInvalidCaptcha)
}

func IsLibraryNotFound(err error) bool {
	return errors.Is(err, ErrLibraryNotFound)
}

func IsLibraryIdentifierTaken(err error) bool {
	return errors.Is(err, ErrLibraryIdentifierTaken)
}

func IsPrefixTooLong(err error) bool {
	return errors.Is(err, ErrPrefixTooLong)
}

func IsCardNotFound(err error) bool {
	return errors.Is(err, ErrCardNotFound)
}

func IsCardNumberExhausted(err error) bool {
	return errors.Is(err, ErrCardNumberExhausted)
}

func IsBulkUploadsDisabled(err error) bool {
	return errors.Is(err, ErrBulkUploadsDisabled)
}

func IsMissingParams(err error) bool {
	return errors.Is(err, ErrMissingParams)
}
