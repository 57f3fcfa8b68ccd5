package repository

import (
	"context"
	"fmt"

	"github.com/virtuallibrarycard/vlc/models"
	"gorm.io/gorm"
)

// LibraryRepositoryImpl implements LibraryRepository interface
type LibraryRepositoryImpl struct {
	*BaseRepository[models.Library, models.LibraryFilter]
}

// NewLibraryRepository creates a new library repository
func NewLibraryRepository(db *gorm.DB) LibraryRepository {
	return &LibraryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Library, models.LibraryFilter](db, applyLibraryFilter),
	}
}

func applyLibraryFilter(db *gorm.DB, filter models.LibraryFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Identifier != nil {
		db = db.Where("identifier = ?", *filter.Identifier)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}
	if filter.Prefix != nil {
		db = db.Where("prefix = ?", *filter.Prefix)
	}
	if filter.NumberingMode != nil {
		db = db.Where("numbering_mode = ?", *filter.NumberingMode)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}

// ByIdentifier retrieves a library by its public identifier
func (r *LibraryRepositoryImpl) ByIdentifier(ctx context.Context, identifier string) (*models.Library, error) {
	filter := models.LibraryFilter{Identifier: &identifier}
	libraries, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find library by identifier: %w", err)
	}

	if len(libraries) == 0 {
		return nil, nil
	}

	return libraries[0], nil
}

// ByPrefix retrieves a library by its card number prefix
func (r *LibraryRepositoryImpl) ByPrefix(ctx context.Context, prefix string) (*models.Library, error) {
	filter := models.LibraryFilter{Prefix: &prefix}
	libraries, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find library by prefix: %w", err)
	}

	if len(libraries) == 0 {
		return nil, nil
	}

	return libraries[0], nil
}
