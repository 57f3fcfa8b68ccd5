package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/virtuallibrarycard/vlc/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceRepositoryImpl implements SequenceRepository on top of the
// sequence_counters table. Concurrent callers serialize on the row lock taken
// by the surrounding transaction, not on application-level locking.
type SequenceRepositoryImpl struct {
	DB *gorm.DB
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &SequenceRepositoryImpl{DB: db}
}

func (r *SequenceRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.DB
}

// lockedQuery adds a row lock on dialects that support it. SQLite (used by the
// test harness) serializes writers on its own.
func (r *SequenceRepositoryImpl) lockedQuery(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// NextValue draws the next value of the named counter. The first draw for a
// name yields initialValue; later draws yield last+1. When resetValue is
// non-nil and last+1 reaches it, the counter restarts at initialValue, which
// is also how callers reseed a counter outright.
func (r *SequenceRepositoryImpl) NextValue(ctx context.Context, name string, initialValue int64, resetValue *int64) (int64, error) {
	run := func(tx *gorm.DB) (int64, error) {
		var counter models.SequenceCounter
		err := r.lockedQuery(tx).Where("name = ?", name).First(&counter).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			counter = models.SequenceCounter{Name: name, LastValue: initialValue}
			if err := tx.Create(&counter).Error; err != nil {
				return 0, fmt.Errorf("failed to create sequence %q: %w", name, err)
			}
			return counter.LastValue, nil
		case err != nil:
			return 0, fmt.Errorf("failed to read sequence %q: %w", name, err)
		}

		next := counter.LastValue + 1
		if resetValue != nil && next >= *resetValue {
			next = initialValue
		}

		err = tx.Model(&models.SequenceCounter{}).
			Where("name = ?", name).
			Update("last_value", next).Error
		if err != nil {
			return 0, fmt.Errorf("failed to advance sequence %q: %w", name, err)
		}

		return next, nil
	}

	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return run(tx)
	}

	// No ambient transaction: open one so the read-modify-write is atomic.
	var value int64
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		value, err = run(tx)
		return err
	})
	return value, err
}

// LastValue returns the current value of the named counter, or nil when the
// counter has never been drawn from.
func (r *SequenceRepositoryImpl) LastValue(ctx context.Context, name string) (*int64, error) {
	db := r.getDB(ctx)

	var counter models.SequenceCounter
	err := db.Where("name = ?", name).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence %q: %w", name, err)
	}

	return &counter.LastValue, nil
}
