package businessflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/virtuallibrarycard/vlc/app/dto"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

// PatronAPIFlow implements the PATRONAPI endpoints used by ILS integrations.
// Lookup failures are encoded in the result, not in the error return; the
// error is reserved for infrastructure faults.
type PatronAPIFlow interface {
	PinTest(ctx context.Context, number, pin string, metadata *ClientMetadata) (*dto.PinTestResult, error)
	Dump(ctx context.Context, number string) (*dto.DumpResult, error)
}

// PatronAPIFlowImpl implements the PATRONAPI business flow
type PatronAPIFlowImpl struct {
	cardRepo   repository.LibraryCardRepository
	patronRepo repository.PatronRepository
	auditRepo  repository.AuditLogRepository
	logger     zerolog.Logger
}

// NewPatronAPIFlow creates a new PATRONAPI flow instance
func NewPatronAPIFlow(
	cardRepo repository.LibraryCardRepository,
	patronRepo repository.PatronRepository,
	auditRepo repository.AuditLogRepository,
	logger zerolog.Logger,
) PatronAPIFlow {
	return &PatronAPIFlowImpl{
		cardRepo:   cardRepo,
		patronRepo: patronRepo,
		auditRepo:  auditRepo,
		logger:     logger.With().Str("component", "patron_api_flow").Logger(),
	}
}

func pinTestError(errNum int, errMsg string) *dto.PinTestResult {
	return &dto.PinTestResult{
		RetCod: 1,
		ErrNum: &errNum,
		ErrMsg: errMsg,
	}
}

// PinTest validates a card number / PIN pair
func (f *PatronAPIFlowImpl) PinTest(ctx context.Context, number, pin string, metadata *ClientMetadata) (*dto.PinTestResult, error) {
	if number == "" || pin == "" {
		return pinTestError(dto.PatronAPIErrMissingParams, "Missing required parameter(s): 'number' and 'pin'"), nil
	}

	card, err := f.cardRepo.ByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return pinTestError(dto.PatronAPIErrRecordNotFound, "Requested record not found"), nil
	}

	patron, err := f.patronRepo.ByID(ctx, card.PatronID)
	if err != nil {
		return nil, err
	}
	if patron == nil {
		return pinTestError(dto.PatronAPIErrRecordNotFound, "Requested record not found"), nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(patron.PasswordHash), []byte(pin)); err != nil {
		msg := fmt.Sprintf("PIN test failed for card %s", number)
		_ = writeAuditLog(ctx, f.auditRepo, patron, models.AuditActionPinTestFailed, msg, false, nil, metadata)
		return pinTestError(dto.PatronAPIErrInvalidPin, "Invalid patron PIN"), nil
	}

	if !utils.IsTrue(patron.EmailVerified) {
		return pinTestError(dto.PatronAPIErrUnverifiedEmail, "Patron has an unverified email address"), nil
	}

	return &dto.PinTestResult{RetCod: 0}, nil
}

// Dump lists the cards matching a number
func (f *PatronAPIFlowImpl) Dump(ctx context.Context, number string) (*dto.DumpResult, error) {
	cards, err := f.cardRepo.ListByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	if len(cards) == 0 {
		errNum := dto.PatronAPIErrRecordNotFound
		return &dto.DumpResult{
			ErrNum: &errNum,
			ErrMsg: "Requested record not found",
		}, nil
	}

	out := make([]dto.CardDTO, 0, len(cards))
	for _, card := range cards {
		out = append(out, CardToDTO(card))
	}

	return &dto.DumpResult{LibraryCards: out}, nil
}
