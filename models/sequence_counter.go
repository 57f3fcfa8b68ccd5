package models

import "time"

// SequenceCounter stores the last value for named monotonic counters. Card
// number sequences are keyed "library_card_number_" + library prefix.
type SequenceCounter struct {
	Name      string    `gorm:"primaryKey;size:64" json:"name"`
	LastValue int64     `gorm:"not null" json:"last_value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SequenceCounter) TableName() string { return "sequence_counters" }

// CardNumberSequenceName is the durable counter key for a library's card
// number sequence.
func CardNumberSequenceName(library *Library) string {
	return "library_card_number_" + library.Prefix
}
