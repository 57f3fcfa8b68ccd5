package models

import (
	"strings"
	"time"
)

// Patron is a library user. The card PIN used by the PATRONAPI surface is the
// patron's account password, matching the legacy ILS behavior.
type Patron struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Email        string `gorm:"size:255;not null;uniqueIndex:uk_patrons_email" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	FirstName string  `gorm:"size:30;not null" json:"first_name"`
	LastName  *string `gorm:"size:150" json:"last_name,omitempty"`

	StreetAddressLine1 *string `gorm:"size:255" json:"street_address_line1,omitempty"`
	StreetAddressLine2 *string `gorm:"size:255" json:"street_address_line2,omitempty"`
	City               *string `gorm:"size:255" json:"city,omitempty"`
	Zip                *string `gorm:"size:10" json:"zip,omitempty"`
	CountryCode        string  `gorm:"size:255;default:US" json:"country_code"`

	PlaceID *uint  `gorm:"index:idx_patrons_place_id" json:"place_id,omitempty"`
	Place   *Place `gorm:"foreignKey:PlaceID;references:ID;constraint:OnDelete:SET NULL" json:"place,omitempty"`

	LibraryID uint     `gorm:"not null;index:idx_patrons_library_id" json:"library_id"`
	Library   *Library `gorm:"foreignKey:LibraryID;references:ID" json:"library,omitempty"`

	Over13        *bool `gorm:"default:true" json:"over13"`
	EmailVerified *bool `gorm:"default:false" json:"email_verified"`
	IsStaff       *bool `gorm:"default:false" json:"is_staff"`
	IsSuperuser   *bool `gorm:"default:false" json:"is_superuser"`

	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	Cards []LibraryCard `gorm:"foreignKey:PatronID" json:"-"`
}

func (Patron) TableName() string { return "patrons" }

// PatronFilter represents filter criteria for patron queries
type PatronFilter struct {
	ID            *uint
	Email         *string
	LibraryID     *uint
	EmailVerified *bool
	IsStaff       *bool
	IsSuperuser   *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// SmartName is the display name used in e-mails and admin listings.
func (p *Patron) SmartName() string {
	name := p.FirstName
	if p.LastName != nil {
		name += " " + *p.LastName
	}
	return strings.TrimSpace(name)
}
