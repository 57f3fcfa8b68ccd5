package businessflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/virtuallibrarycard/vlc/app/dto"
	"github.com/virtuallibrarycard/vlc/app/services"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

// LibraryCardFlow handles card issuance and cancellation
type LibraryCardFlow interface {
	NewCard(ctx context.Context, req *dto.CreateCardRequest, metadata *ClientMetadata) (*dto.CardResponse, error)
	CancelCard(ctx context.Context, req *dto.CancelCardRequest, canceledBy *models.Patron, metadata *ClientMetadata) (*dto.CardResponse, error)

	// IssueCard is the reusable core of NewCard: an active card for the
	// (patron, library) pair is returned as-is, otherwise a fresh card is
	// created with a generated or caller-supplied number. The boolean
	// reports whether an existing card was reused.
	IssueCard(ctx context.Context, patron *models.Patron, library *models.Library, number *string) (*models.LibraryCard, bool, error)
}

// LibraryCardFlowImpl implements the library card business flow
type LibraryCardFlowImpl struct {
	cardRepo        repository.LibraryCardRepository
	patronRepo      repository.PatronRepository
	libraryRepo     repository.LibraryRepository
	auditRepo       repository.AuditLogRepository
	generator       CardNumberGenerator
	notificationSvc services.NotificationService
	db              *gorm.DB
	logger          zerolog.Logger
}

// NewLibraryCardFlow creates a new library card flow instance
func NewLibraryCardFlow(
	cardRepo repository.LibraryCardRepository,
	patronRepo repository.PatronRepository,
	libraryRepo repository.LibraryRepository,
	auditRepo repository.AuditLogRepository,
	generator CardNumberGenerator,
	notificationSvc services.NotificationService,
	db *gorm.DB,
	logger zerolog.Logger,
) LibraryCardFlow {
	return &LibraryCardFlowImpl{
		cardRepo:        cardRepo,
		patronRepo:      patronRepo,
		libraryRepo:     libraryRepo,
		auditRepo:       auditRepo,
		generator:       generator,
		notificationSvc: notificationSvc,
		db:              db,
		logger:          logger.With().Str("component", "library_card_flow").Logger(),
	}
}

// NewCard issues a card for an existing patron
func (f *LibraryCardFlowImpl) NewCard(ctx context.Context, req *dto.CreateCardRequest, metadata *ClientMetadata) (*dto.CardResponse, error) {
	patron, err := f.patronRepo.ByID(ctx, req.PatronID)
	if err != nil {
		return nil, NewBusinessError("CARD_CREATION_FAILED", "Card creation failed", err)
	}
	if patron == nil {
		return nil, NewBusinessError("PATRON_NOT_FOUND", "Patron not found", ErrPatronNotFound)
	}

	library, err := f.libraryRepo.ByIdentifier(ctx, req.LibraryIdentifier)
	if err != nil {
		return nil, NewBusinessError("CARD_CREATION_FAILED", "Card creation failed", err)
	}
	if library == nil {
		return nil, NewBusinessError("LIBRARY_NOT_FOUND", "Library not found", ErrLibraryNotFound)
	}

	card, reused, err := f.IssueCard(ctx, patron, library, req.Number)
	if err != nil {
		errMsg := fmt.Sprintf("Card creation failed: %s", err.Error())
		_ = writeAuditLog(ctx, f.auditRepo, patron, models.AuditActionCardCreationFailed, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("CARD_CREATION_FAILED", "Card creation failed", err)
	}

	msg := fmt.Sprintf("Card %s issued for patron %d", card.Number, patron.ID)
	_ = writeAuditLog(ctx, f.auditRepo, patron, models.AuditActionCardCreated, msg, true, nil, metadata)

	return &dto.CardResponse{
		Message: "Card issued successfully",
		Card:    CardToDTO(card),
		Reused:  reused,
	}, nil
}

// IssueCard creates (or reuses) a card for the patron at the library and
// sends the welcome e-mail outside the transaction, best-effort.
func (f *LibraryCardFlowImpl) IssueCard(ctx context.Context, patron *models.Patron, library *models.Library, number *string) (*models.LibraryCard, bool, error) {
	existing, err := f.cardRepo.ByPatronAndLibrary(ctx, patron.ID, library.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && !existing.IsCanceled() {
		return existing, true, nil
	}

	card := &models.LibraryCard{
		LibraryID: &library.ID,
		Library:   library,
		PatronID:  patron.ID,
	}
	if library.CardValidityMonths != nil && *library.CardValidityMonths > 0 {
		card.ExpirationDate = utils.ToPtr(utils.AddMonths(utils.UTCNow(), int(*library.CardValidityMonths)))
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if number != nil && *number != "" {
			exists, err := f.cardRepo.NumberExists(txCtx, library.ID, *number)
			if err != nil {
				return err
			}
			if exists {
				return ErrCardNumberDuplicate
			}
			card.Number = *number
		} else if err := f.generator.Assign(txCtx, card); err != nil {
			return err
		}

		return f.cardRepo.Save(txCtx, card)
	})
	if err != nil {
		return nil, false, err
	}

	go func() {
		if err := f.notificationSvc.SendWelcomeEmail(library, patron, card.Number); err != nil {
			f.logger.Error().Err(err).Str("email", patron.Email).Msg("failed to send welcome email")
			errMsg := fmt.Sprintf("Failed to send welcome email: %v", err)
			_ = writeAuditLog(context.Background(), f.auditRepo, patron, models.AuditActionWelcomeEmailFailed, errMsg, false, &errMsg, nil)
		}
	}()

	return card, false, nil
}

// CancelCard cancels a card by number. Cancellation is logical; the number
// stays reserved by the unique index so it is never reissued.
func (f *LibraryCardFlowImpl) CancelCard(ctx context.Context, req *dto.CancelCardRequest, canceledBy *models.Patron, metadata *ClientMetadata) (*dto.CardResponse, error) {
	card, err := f.cardRepo.ByNumber(ctx, req.Number)
	if err != nil {
		return nil, NewBusinessError("CARD_CANCEL_FAILED", "Card cancellation failed", err)
	}
	if card == nil {
		return nil, NewBusinessError("CARD_NOT_FOUND", "Card not found", ErrCardNotFound)
	}
	if card.IsCanceled() {
		return nil, NewBusinessError("CARD_ALREADY_CANCELED", "Card is already canceled", ErrCardAlreadyCanceled)
	}

	canceledByName := "system"
	if canceledBy != nil {
		canceledByName = canceledBy.Email
	}

	when := utils.UTCNow()
	if err := f.cardRepo.Cancel(ctx, card.ID, canceledByName, when); err != nil {
		return nil, NewBusinessError("CARD_CANCEL_FAILED", "Card cancellation failed", err)
	}
	card.CanceledDate = &when
	card.CanceledByUser = &canceledByName

	msg := fmt.Sprintf("Card %s canceled by %s", card.Number, canceledByName)
	_ = writeAuditLog(ctx, f.auditRepo, canceledBy, models.AuditActionCardCanceled, msg, true, nil, metadata)

	return &dto.CardResponse{
		Message: "Card canceled successfully",
		Card:    CardToDTO(card),
	}, nil
}

// CardToDTO maps a card model to its API representation
func CardToDTO(card *models.LibraryCard) dto.CardDTO {
	return dto.CardDTO{
		ID:             card.ID,
		Number:         card.Number,
		LibraryID:      card.LibraryID,
		PatronID:       card.PatronID,
		ExpirationDate: card.ExpirationDate,
		CanceledDate:   card.CanceledDate,
		Status:         card.StatusStr(),
		Created:        card.Created,
	}
}
