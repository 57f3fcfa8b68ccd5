package models

import (
	"time"
)

// LibraryCard is the patron-facing card record. Number is assigned once at
// issuance and never regenerated; cancellation is logical via CanceledDate.
type LibraryCard struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Number string `gorm:"size:100;uniqueIndex:uk_library_cards_library_number,priority:2" json:"number"`

	LibraryID *uint    `gorm:"uniqueIndex:uk_library_cards_library_number,priority:1;index:idx_library_cards_library_id" json:"library_id,omitempty"`
	Library   *Library `gorm:"foreignKey:LibraryID;references:ID;constraint:OnDelete:SET NULL" json:"library,omitempty"`

	PatronID uint    `gorm:"not null;index:idx_library_cards_patron_id" json:"patron_id"`
	Patron   *Patron `gorm:"foreignKey:PatronID;references:ID;constraint:OnDelete:CASCADE" json:"patron,omitempty"`

	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	CanceledDate   *time.Time `json:"canceled_date,omitempty"`
	CanceledByUser *string    `gorm:"size:255" json:"canceled_by_user,omitempty"`

	Created time.Time `gorm:"autoCreateTime" json:"created"`
}

func (LibraryCard) TableName() string { return "library_cards" }

// LibraryCardFilter represents filter criteria for card queries
type LibraryCardFilter struct {
	ID            *uint
	Number        *string
	LibraryID     *uint
	PatronID      *uint
	Canceled      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (c *LibraryCard) IsExpired() bool {
	if c.ExpirationDate == nil {
		return false
	}
	return c.ExpirationDate.Before(time.Now())
}

func (c *LibraryCard) IsCanceled() bool {
	return c.CanceledDate != nil
}

// StatusStr mirrors the card status suffix shown in admin listings and the
// PATRONAPI dump response.
func (c *LibraryCard) StatusStr() string {
	if c.IsExpired() {
		return " | EXPIRED"
	}
	if c.IsCanceled() {
		return " | CANCELLED"
	}
	return ""
}
