package repository

import (
	"context"
	"fmt"

	"github.com/virtuallibrarycard/vlc/models"
	"gorm.io/gorm"
)

// PatronRepositoryImpl implements PatronRepository interface
type PatronRepositoryImpl struct {
	*BaseRepository[models.Patron, models.PatronFilter]
}

// NewPatronRepository creates a new patron repository
func NewPatronRepository(db *gorm.DB) PatronRepository {
	return &PatronRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Patron, models.PatronFilter](db, applyPatronFilter),
	}
}

func applyPatronFilter(db *gorm.DB, filter models.PatronFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Email != nil {
		db = db.Where("email = ?", *filter.Email)
	}
	if filter.LibraryID != nil {
		db = db.Where("library_id = ?", *filter.LibraryID)
	}
	if filter.EmailVerified != nil {
		db = db.Where("email_verified = ?", *filter.EmailVerified)
	}
	if filter.IsStaff != nil {
		db = db.Where("is_staff = ?", *filter.IsStaff)
	}
	if filter.IsSuperuser != nil {
		db = db.Where("is_superuser = ?", *filter.IsSuperuser)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}

// ByEmail retrieves a patron by email address
func (r *PatronRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.Patron, error) {
	filter := models.PatronFilter{Email: &email}
	patrons, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find patron by email: %w", err)
	}

	if len(patrons) == 0 {
		return nil, nil
	}

	return patrons[0], nil
}

// ByEmailAndLibrary retrieves a patron by email scoped to a library
func (r *PatronRepositoryImpl) ByEmailAndLibrary(ctx context.Context, email string, libraryID uint) (*models.Patron, error) {
	filter := models.PatronFilter{Email: &email, LibraryID: &libraryID}
	patrons, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find patron by email and library: %w", err)
	}

	if len(patrons) == 0 {
		return nil, nil
	}

	return patrons[0], nil
}

// ListLibraryAdmins retrieves staff patrons attached to a library
func (r *PatronRepositoryImpl) ListLibraryAdmins(ctx context.Context, libraryID uint) ([]*models.Patron, error) {
	isStaff := true
	filter := models.PatronFilter{LibraryID: &libraryID, IsStaff: &isStaff}

	admins, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list library admins: %w", err)
	}

	return admins, nil
}

// ListSuperusers retrieves all superuser patrons
func (r *PatronRepositoryImpl) ListSuperusers(ctx context.Context) ([]*models.Patron, error) {
	isSuperuser := true
	filter := models.PatronFilter{IsSuperuser: &isSuperuser}

	superusers, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list superusers: %w", err)
	}

	return superusers, nil
}

// MarkEmailVerified flips the email_verified flag for a patron
func (r *PatronRepositoryImpl) MarkEmailVerified(ctx context.Context, patronID uint) error {
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

	err = db.Model(&models.Patron{}).
		Where("id = ?", patronID).
		Update("email_verified", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark patron %d email verified: %w", patronID, err)
	}

	return nil
}
