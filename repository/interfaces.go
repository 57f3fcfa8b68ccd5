// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/virtuallibrarycard/vlc/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// LibraryRepository defines operations for libraries
type LibraryRepository interface {
	Repository[models.Library, models.LibraryFilter]
	ByIdentifier(ctx context.Context, identifier string) (*models.Library, error)
	ByPrefix(ctx context.Context, prefix string) (*models.Library, error)
}

// LibraryCardRepository defines operations for library cards
type LibraryCardRepository interface {
	Repository[models.LibraryCard, models.LibraryCardFilter]
	ByNumber(ctx context.Context, number string) (*models.LibraryCard, error)
	ListByNumber(ctx context.Context, number string) ([]*models.LibraryCard, error)
	ByPatronAndLibrary(ctx context.Context, patronID, libraryID uint) (*models.LibraryCard, error)
	NumberExists(ctx context.Context, libraryID uint, number string) (bool, error)
	Cancel(ctx context.Context, cardID uint, canceledBy string, when time.Time) error
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.LibraryCard, error)
}

// PatronRepository defines operations for patrons
type PatronRepository interface {
	Repository[models.Patron, models.PatronFilter]
	ByEmail(ctx context.Context, email string) (*models.Patron, error)
	ByEmailAndLibrary(ctx context.Context, email string, libraryID uint) (*models.Patron, error)
	ListLibraryAdmins(ctx context.Context, libraryID uint) ([]*models.Patron, error)
	ListSuperusers(ctx context.Context) ([]*models.Patron, error)
	MarkEmailVerified(ctx context.Context, patronID uint) error
}

// PlaceRepository defines operations for places
type PlaceRepository interface {
	Repository[models.Place, models.PlaceFilter]
	ByNameAndType(ctx context.Context, name, placeType string) (*models.Place, error)
	ByAbbreviation(ctx context.Context, abbreviation string) (*models.Place, error)
	Ancestors(ctx context.Context, placeID uint) ([]*models.Place, error)
}

// LibraryPlaceRepository defines operations for library service areas
type LibraryPlaceRepository interface {
	Repository[models.LibraryPlace, models.LibraryPlaceFilter]
	ListByLibrary(ctx context.Context, libraryID uint) ([]*models.LibraryPlace, error)
	DeleteByLibrary(ctx context.Context, libraryID uint) error
}

// SequenceRepository is a durable named-counter service. NextValue follows the
// contract of a database-backed sequence: the first call for a name yields the
// initial value, later calls yield last+1, and a non-nil resetValue restarts
// the sequence at the initial value once last+1 reaches it.
type SequenceRepository interface {
	NextValue(ctx context.Context, name string, initialValue int64, resetValue *int64) (int64, error)
	LastValue(ctx context.Context, name string) (*int64, error)
}

// BulkUploadJobRepository defines operations for bulk upload jobs
type BulkUploadJobRepository interface {
	Repository[models.BulkUploadJob, models.BulkUploadJobFilter]
	UpdateStatus(ctx context.Context, jobID uint, status string, succeeded, failed int, errMsg *string) error
	FailStaleRunning(ctx context.Context, olderThan time.Time, errMsg string) (int64, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByPatron(ctx context.Context, patronID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}
