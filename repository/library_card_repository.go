package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/virtuallibrarycard/vlc/models"
	"gorm.io/gorm"
)

// LibraryCardRepositoryImpl implements LibraryCardRepository interface
type LibraryCardRepositoryImpl struct {
	*BaseRepository[models.LibraryCard, models.LibraryCardFilter]
}

// NewLibraryCardRepository creates a new library card repository
func NewLibraryCardRepository(db *gorm.DB) LibraryCardRepository {
	return &LibraryCardRepositoryImpl{
		BaseRepository: NewBaseRepository[models.LibraryCard, models.LibraryCardFilter](db, applyLibraryCardFilter),
	}
}

func applyLibraryCardFilter(db *gorm.DB, filter models.LibraryCardFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Number != nil {
		db = db.Where("number = ?", *filter.Number)
	}
	if filter.LibraryID != nil {
		db = db.Where("library_id = ?", *filter.LibraryID)
	}
	if filter.PatronID != nil {
		db = db.Where("patron_id = ?", *filter.PatronID)
	}
	if filter.Canceled != nil {
		if *filter.Canceled {
			db = db.Where("canceled_date IS NOT NULL")
		} else {
			db = db.Where("canceled_date IS NULL")
		}
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created <= ?", *filter.CreatedBefore)
	}
	return db
}

// ByNumber retrieves the first card carrying the given number, any library
func (r *LibraryCardRepositoryImpl) ByNumber(ctx context.Context, number string) (*models.LibraryCard, error) {
	cards, err := r.ListByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, nil
	}
	return cards[0], nil
}

// ListByNumber retrieves every card carrying the given number. Numbers are
// unique per library, not globally, so more than one row is possible.
func (r *LibraryCardRepositoryImpl) ListByNumber(ctx context.Context, number string) ([]*models.LibraryCard, error) {
	db := r.getDB(ctx)

	var cards []*models.LibraryCard
	err := db.Where("number = ?", number).
		Preload("Library").
		Preload("Patron").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cards by number: %w", err)
	}

	return cards, nil
}

// ByPatronAndLibrary retrieves the card a patron holds at a library, if any
func (r *LibraryCardRepositoryImpl) ByPatronAndLibrary(ctx context.Context, patronID, libraryID uint) (*models.LibraryCard, error) {
	filter := models.LibraryCardFilter{PatronID: &patronID, LibraryID: &libraryID}
	cards, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find card by patron and library: %w", err)
	}

	if len(cards) == 0 {
		return nil, nil
	}

	return cards[0], nil
}

// NumberExists reports whether a (library, number) pair is already taken.
// This is an early-exit optimization; the composite unique index is the real
// guarantee against concurrent writers.
func (r *LibraryCardRepositoryImpl) NumberExists(ctx context.Context, libraryID uint, number string) (bool, error) {
	return r.Exists(ctx, models.LibraryCardFilter{LibraryID: &libraryID, Number: &number})
}

// ListExpiringBetween retrieves active cards whose expiration date falls in
// [from, to), with patron and library preloaded for reminder e-mails.
func (r *LibraryCardRepositoryImpl) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.LibraryCard, error) {
	db := r.getDB(ctx)

	var cards []*models.LibraryCard
	err := db.Where("expiration_date >= ? AND expiration_date < ?", from, to).
		Where("canceled_date IS NULL").
		Preload("Library").
		Preload("Patron").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring cards: %w", err)
	}

	return cards, nil
}

// Cancel marks a card canceled without deleting the row
func (r *LibraryCardRepositoryImpl) Cancel(ctx context.Context, cardID uint, canceledBy string, when time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.LibraryCard{}).
		Where("id = ?", cardID).
		Updates(map[string]any{
			"canceled_date":    when,
			"canceled_by_user": canceledBy,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to cancel card %d: %w", cardID, err)
	}

	return nil
}
