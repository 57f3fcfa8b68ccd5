package dto

import "time"

// CreateCardRequest asks for a new card for an existing patron. When Number
// is empty a number is generated according to the library's numbering mode.
type CreateCardRequest struct {
	PatronID          uint    `json:"patron_id" validate:"required"`
	LibraryIdentifier string  `json:"library_identifier" validate:"required,max=255"`
	Number            *string `json:"number,omitempty" validate:"omitempty,max=100"`
}

// CancelCardRequest cancels an existing card by number
type CancelCardRequest struct {
	Number string `json:"number" validate:"required,max=100"`
}

// CardDTO represents library card data for API responses
type CardDTO struct {
	ID             uint       `json:"id"`
	Number         string     `json:"number"`
	LibraryID      *uint      `json:"library_id,omitempty"`
	PatronID       uint       `json:"patron_id"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	CanceledDate   *time.Time `json:"canceled_date,omitempty"`
	Status         string     `json:"status"`
	Created        time.Time  `json:"created"`
}

// CardResponse wraps a single card
type CardResponse struct {
	Message string  `json:"message"`
	Card    CardDTO `json:"card"`
	Reused  bool    `json:"reused"`
}
