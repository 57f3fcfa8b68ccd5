package models

import "time"

// Place types, most specific last.
const (
	PlaceTypeCountry  = "country"
	PlaceTypeState    = "state"
	PlaceTypeProvince = "province"
	PlaceTypeCounty   = "county"
	PlaceTypeCity     = "city"
)

// Place is a hierarchical store of locations. A place may be contained within
// another place, denoted by the Parent relationship (e.g. Texas is a state
// whose parent is the United States country record).
type Place struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	ExternalID   *string `gorm:"size:255;index:idx_places_external_id" json:"external_id,omitempty"`
	Name         string  `gorm:"size:255;not null;index:idx_places_name" json:"name"`
	Type         string  `gorm:"size:32;not null;index:idx_places_type" json:"type"`
	Abbreviation *string `gorm:"size:10;index:idx_places_abbreviation" json:"abbreviation,omitempty"`

	ParentID *uint  `gorm:"index:idx_places_parent_id" json:"parent_id,omitempty"`
	Parent   *Place `gorm:"foreignKey:ParentID;references:ID" json:"parent,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Place) TableName() string { return "places" }

// PlaceFilter represents filter criteria for place queries
type PlaceFilter struct {
	ID           *uint
	Name         *string
	Type         *string
	Abbreviation *string
	ParentID     *uint
}

// LibraryPlace links a library to a place it serves. Library membership in a
// place is hierarchical: serving a state means serving every city within it.
type LibraryPlace struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	LibraryID uint     `gorm:"not null;uniqueIndex:uk_library_places,priority:1" json:"library_id"`
	Library   *Library `gorm:"foreignKey:LibraryID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	PlaceID   uint     `gorm:"not null;uniqueIndex:uk_library_places,priority:2" json:"place_id"`
	Place     *Place   `gorm:"foreignKey:PlaceID;references:ID;constraint:OnDelete:CASCADE" json:"place,omitempty"`
}

func (LibraryPlace) TableName() string { return "library_places" }

// LibraryPlaceFilter represents filter criteria for library place queries
type LibraryPlaceFilter struct {
	ID        *uint
	LibraryID *uint
	PlaceID   *uint
}
