package repository

import (
	"context"
	"fmt"

	"github.com/virtuallibrarycard/vlc/models"
	"gorm.io/gorm"
)

// PlaceRepositoryImpl implements PlaceRepository interface
type PlaceRepositoryImpl struct {
	*BaseRepository[models.Place, models.PlaceFilter]
}

// NewPlaceRepository creates a new place repository
func NewPlaceRepository(db *gorm.DB) PlaceRepository {
	return &PlaceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Place, models.PlaceFilter](db, applyPlaceFilter),
	}
}

func applyPlaceFilter(db *gorm.DB, filter models.PlaceFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.Abbreviation != nil {
		db = db.Where("abbreviation = ?", *filter.Abbreviation)
	}
	if filter.ParentID != nil {
		db = db.Where("parent_id = ?", *filter.ParentID)
	}
	return db
}

// ByNameAndType retrieves a place by name and place type
func (r *PlaceRepositoryImpl) ByNameAndType(ctx context.Context, name, placeType string) (*models.Place, error) {
	filter := models.PlaceFilter{Name: &name, Type: &placeType}
	places, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find place by name and type: %w", err)
	}

	if len(places) == 0 {
		return nil, nil
	}

	return places[0], nil
}

// ByAbbreviation retrieves a place by its abbreviation (e.g. state code)
func (r *PlaceRepositoryImpl) ByAbbreviation(ctx context.Context, abbreviation string) (*models.Place, error) {
	filter := models.PlaceFilter{Abbreviation: &abbreviation}
	places, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find place by abbreviation: %w", err)
	}

	if len(places) == 0 {
		return nil, nil
	}

	return places[0], nil
}

// Ancestors walks the parent chain of a place, most immediate parent first.
// The chain is short (city -> county -> state -> country) so looping single
// lookups is fine.
func (r *PlaceRepositoryImpl) Ancestors(ctx context.Context, placeID uint) ([]*models.Place, error) {
	var ancestors []*models.Place

	current, err := r.ByID(ctx, placeID)
	if err != nil {
		return nil, err
	}

	for current != nil && current.ParentID != nil {
		parent, err := r.ByID(ctx, *current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to walk place ancestors: %w", err)
		}
		if parent == nil {
			break
		}
		ancestors = append(ancestors, parent)
		current = parent
	}

	return ancestors, nil
}

// LibraryPlaceRepositoryImpl implements LibraryPlaceRepository interface
type LibraryPlaceRepositoryImpl struct {
	*BaseRepository[models.LibraryPlace, models.LibraryPlaceFilter]
}

// NewLibraryPlaceRepository creates a new library place repository
func NewLibraryPlaceRepository(db *gorm.DB) LibraryPlaceRepository {
	return &LibraryPlaceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.LibraryPlace, models.LibraryPlaceFilter](db, applyLibraryPlaceFilter),
	}
}

func applyLibraryPlaceFilter(db *gorm.DB, filter models.LibraryPlaceFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.LibraryID != nil {
		db = db.Where("library_id = ?", *filter.LibraryID)
	}
	if filter.PlaceID != nil {
		db = db.Where("place_id = ?", *filter.PlaceID)
	}
	return db
}

// ListByLibrary retrieves the places a library serves
func (r *LibraryPlaceRepositoryImpl) ListByLibrary(ctx context.Context, libraryID uint) ([]*models.LibraryPlace, error) {
	db := r.getDB(ctx)

	var links []*models.LibraryPlace
	err := db.Where("library_id = ?", libraryID).
		Preload("Place").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list library places: %w", err)
	}

	return links, nil
}

// DeleteByLibrary removes all service area links of a library
func (r *LibraryPlaceRepositoryImpl) DeleteByLibrary(ctx context.Context, libraryID uint) error {
	db := r.getDB(ctx)

	err := db.Where("library_id = ?", libraryID).Delete(&models.LibraryPlace{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete library places: %w", err)
	}

	return nil
}
