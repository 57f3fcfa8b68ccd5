package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/virtuallibrarycard/vlc/app/dto"
	"github.com/virtuallibrarycard/vlc/config"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

// LibraryFlow handles library administration
type LibraryFlow interface {
	CreateLibrary(ctx context.Context, req *dto.CreateLibraryRequest, admin *models.Patron, metadata *ClientMetadata) (*dto.LibraryResponse, error)
	UpdateLibrary(ctx context.Context, identifier string, req *dto.UpdateLibraryRequest, admin *models.Patron, metadata *ClientMetadata) (*dto.LibraryResponse, error)
	GetLibrary(ctx context.Context, identifier string) (*dto.LibraryResponse, error)
	ListLibraries(ctx context.Context, limit, offset int) (*dto.ListLibrariesResponse, error)

	// ResolveLibrary returns the library model, consulting the redis cache
	// before the database. Used by the signup path on every request.
	ResolveLibrary(ctx context.Context, identifier string) (*models.Library, error)
}

// LibraryFlowImpl implements the library administration flow
type LibraryFlowImpl struct {
	libraryRepo      repository.LibraryRepository
	placeRepo        repository.PlaceRepository
	libraryPlaceRepo repository.LibraryPlaceRepository
	auditRepo        repository.AuditLogRepository
	generator        CardNumberGenerator
	rc               *redis.Client
	cacheConfig      *config.CacheConfig
	db               *gorm.DB
	logger           zerolog.Logger
}

// NewLibraryFlow creates a new library flow instance
func NewLibraryFlow(
	libraryRepo repository.LibraryRepository,
	placeRepo repository.PlaceRepository,
	libraryPlaceRepo repository.LibraryPlaceRepository,
	auditRepo repository.AuditLogRepository,
	generator CardNumberGenerator,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
	db *gorm.DB,
	logger zerolog.Logger,
) LibraryFlow {
	return &LibraryFlowImpl{
		libraryRepo:      libraryRepo,
		placeRepo:        placeRepo,
		libraryPlaceRepo: libraryPlaceRepo,
		auditRepo:        auditRepo,
		generator:        generator,
		rc:               rc,
		cacheConfig:      cacheConfig,
		db:               db,
		logger:           logger.With().Str("component", "library_flow").Logger(),
	}
}

func redisKey(cfg config.CacheConfig, suffix string) string {
	return cfg.RedisPrefix + suffix
}

func (f *LibraryFlowImpl) libraryCacheKey(identifier string) string {
	return redisKey(*f.cacheConfig, "library:"+strings.ToLower(identifier))
}

// validateCardNumberPrefix enforces the prefix budget at persist time so a
// misconfigured library is rejected before any card issuance can hit it.
// Sequential numbering needs at least one serialized digit; random numbering
// needs enough room for MinRandomLength drawn characters.
func validateCardNumberPrefix(numberingMode, prefix string) error {
	if prefix == "" {
		return ErrPrefixRequired
	}

	serializedLength := utils.CardNumberTotalLength - len(prefix)
	switch numberingMode {
	case models.NumberingModeSequence:
		if serializedLength < 1 {
			return ErrPrefixTooLong
		}
	case models.NumberingModeRandom:
		if serializedLength < utils.MinRandomLength {
			return ErrPrefixTooLong
		}
	default:
		return ErrInvalidNumberingMode
	}
	return nil
}

func validateSequenceBounds(start int64, end *int64) error {
	if end != nil && *end <= start {
		return ErrInvalidSequenceBounds
	}
	return nil
}

// CreateLibrary creates a library with its served states
func (f *LibraryFlowImpl) CreateLibrary(ctx context.Context, req *dto.CreateLibraryRequest, admin *models.Patron, metadata *ClientMetadata) (*dto.LibraryResponse, error) {
	if err := validateCardNumberPrefix(req.NumberingMode, req.Prefix); err != nil {
		return nil, NewBusinessError("LIBRARY_VALIDATION_FAILED", "Library validation failed", err)
	}
	if req.NumberingMode == models.NumberingModeSequence && !utils.IsTrue(req.SequenceDown) {
		if err := validateSequenceBounds(req.SequenceStartNumber, req.SequenceEndNumber); err != nil {
			return nil, NewBusinessError("LIBRARY_VALIDATION_FAILED", "Library validation failed", err)
		}
	}

	existing, err := f.libraryRepo.ByIdentifier(ctx, req.Identifier)
	if err != nil {
		return nil, NewBusinessError("LIBRARY_CREATION_FAILED", "Library creation failed", err)
	}
	if existing != nil {
		return nil, NewBusinessError("LIBRARY_IDENTIFIER_TAKEN", "Library identifier already in use", ErrLibraryIdentifierTaken)
	}

	library := &models.Library{
		UUID:                     uuid.New(),
		Name:                     req.Name,
		Identifier:               req.Identifier,
		Phone:                    req.Phone,
		Email:                    req.Email,
		TermsConditionsURL:       req.TermsConditionsURL,
		PrivacyURL:               req.PrivacyURL,
		Prefix:                   req.Prefix,
		NumberingMode:            req.NumberingMode,
		SequenceStartNumber:      req.SequenceStartNumber,
		SequenceEndNumber:        req.SequenceEndNumber,
		SequenceDown:             req.SequenceDown,
		BulkUploadPrefix:         req.BulkUploadPrefix,
		AllowBulkCardUploads:     req.AllowBulkCardUploads,
		CardValidityMonths:       req.CardValidityMonths,
		PatronAddressMandatory:   req.PatronAddressMandatory,
		AgeVerificationMandatory: req.AgeVerificationMandatory,
		BarcodeText:              req.BarcodeText,
		PinText:                  req.PinText,
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.libraryRepo.Save(txCtx, library); err != nil {
			return err
		}
		return f.attachStates(txCtx, library, req.States)
	})
	if err != nil {
		errMsg := fmt.Sprintf("Library creation failed: %s", err.Error())
		_ = writeAuditLog(ctx, f.auditRepo, admin, models.AuditActionLibraryCreated, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("LIBRARY_CREATION_FAILED", "Library creation failed", err)
	}

	msg := fmt.Sprintf("Library %s created", library.Identifier)
	_ = writeAuditLog(ctx, f.auditRepo, admin, models.AuditActionLibraryCreated, msg, true, nil, metadata)

	states, _ := f.servedStates(ctx, library.ID)
	return &dto.LibraryResponse{
		Message: "Library created successfully",
		Library: LibraryToDTO(library, states),
	}, nil
}

// UpdateLibrary applies a partial update. A changed sequence start number
// triggers a sequence reset so future card numbers respect the new start.
func (f *LibraryFlowImpl) UpdateLibrary(ctx context.Context, identifier string, req *dto.UpdateLibraryRequest, admin *models.Patron, metadata *ClientMetadata) (*dto.LibraryResponse, error) {
	library, err := f.libraryRepo.ByIdentifier(ctx, identifier)
	if err != nil {
		return nil, NewBusinessError("LIBRARY_UPDATE_FAILED", "Library update failed", err)
	}
	if library == nil {
		return nil, NewBusinessError("LIBRARY_NOT_FOUND", "Library not found", ErrLibraryNotFound)
	}

	prefix := library.Prefix
	if req.Prefix != nil {
		prefix = *req.Prefix
	}
	numberingMode := library.NumberingMode
	if req.NumberingMode != nil {
		numberingMode = *req.NumberingMode
	}
	if err := validateCardNumberPrefix(numberingMode, prefix); err != nil {
		return nil, NewBusinessError("LIBRARY_VALIDATION_FAILED", "Library validation failed", err)
	}

	startChanged := req.SequenceStartNumber != nil && *req.SequenceStartNumber != library.SequenceStartNumber

	if req.Name != nil {
		library.Name = *req.Name
	}
	if req.Phone != nil {
		library.Phone = req.Phone
	}
	if req.Email != nil {
		library.Email = req.Email
	}
	if req.TermsConditionsURL != nil {
		library.TermsConditionsURL = *req.TermsConditionsURL
	}
	if req.PrivacyURL != nil {
		library.PrivacyURL = *req.PrivacyURL
	}
	library.Prefix = prefix
	library.NumberingMode = numberingMode
	if req.SequenceStartNumber != nil {
		library.SequenceStartNumber = *req.SequenceStartNumber
	}
	if req.SequenceEndNumber != nil {
		library.SequenceEndNumber = req.SequenceEndNumber
	}
	if req.SequenceDown != nil {
		library.SequenceDown = req.SequenceDown
	}
	if req.BulkUploadPrefix != nil {
		library.BulkUploadPrefix = req.BulkUploadPrefix
	}
	if req.AllowBulkCardUploads != nil {
		library.AllowBulkCardUploads = req.AllowBulkCardUploads
	}
	if req.CardValidityMonths != nil {
		library.CardValidityMonths = req.CardValidityMonths
	}
	if req.PatronAddressMandatory != nil {
		library.PatronAddressMandatory = req.PatronAddressMandatory
	}
	if req.AgeVerificationMandatory != nil {
		library.AgeVerificationMandatory = req.AgeVerificationMandatory
	}
	if req.BarcodeText != nil {
		library.BarcodeText = *req.BarcodeText
	}
	if req.PinText != nil {
		library.PinText = *req.PinText
	}

	if library.IsSequential() && !library.IsDescending() {
		if err := validateSequenceBounds(library.SequenceStartNumber, library.SequenceEndNumber); err != nil {
			return nil, NewBusinessError("LIBRARY_VALIDATION_FAILED", "Library validation failed", err)
		}
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.libraryRepo.Update(txCtx, library); err != nil {
			return err
		}
		if req.States != nil {
			if err := f.replaceStates(txCtx, library, req.States); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("LIBRARY_UPDATE_FAILED", "Library update failed", err)
	}

	if startChanged && library.IsSequential() {
		if err := f.generator.ResetSequence(ctx, library); err != nil {
			return nil, NewBusinessError("SEQUENCE_RESET_FAILED", "Sequence reset failed", err)
		}
		msg := fmt.Sprintf("Sequence for library %s reset to start %d", library.Identifier, library.SequenceStartNumber)
		_ = writeAuditLog(ctx, f.auditRepo, admin, models.AuditActionSequenceReset, msg, true, nil, metadata)
	}

	f.invalidateCache(ctx, identifier, library.Identifier)

	msg := fmt.Sprintf("Library %s updated", library.Identifier)
	_ = writeAuditLog(ctx, f.auditRepo, admin, models.AuditActionLibraryUpdated, msg, true, nil, metadata)

	states, _ := f.servedStates(ctx, library.ID)
	return &dto.LibraryResponse{
		Message: "Library updated successfully",
		Library: LibraryToDTO(library, states),
	}, nil
}

// GetLibrary returns one library by identifier
func (f *LibraryFlowImpl) GetLibrary(ctx context.Context, identifier string) (*dto.LibraryResponse, error) {
	library, err := f.ResolveLibrary(ctx, identifier)
	if err != nil {
		return nil, err
	}

	states, _ := f.servedStates(ctx, library.ID)
	return &dto.LibraryResponse{
		Message: "Library retrieved successfully",
		Library: LibraryToDTO(library, states),
	}, nil
}

// ListLibraries returns a page of libraries
func (f *LibraryFlowImpl) ListLibraries(ctx context.Context, limit, offset int) (*dto.ListLibrariesResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	libraries, err := f.libraryRepo.ByFilter(ctx, models.LibraryFilter{}, "id ASC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIBRARY_LIST_FAILED", "Failed to list libraries", err)
	}
	total, err := f.libraryRepo.Count(ctx, models.LibraryFilter{})
	if err != nil {
		return nil, NewBusinessError("LIBRARY_LIST_FAILED", "Failed to list libraries", err)
	}

	out := make([]dto.LibraryDTO, 0, len(libraries))
	for _, library := range libraries {
		states, _ := f.servedStates(ctx, library.ID)
		out = append(out, LibraryToDTO(library, states))
	}

	return &dto.ListLibrariesResponse{
		Message:   "Libraries retrieved successfully",
		Libraries: out,
		Total:     total,
	}, nil
}

// ResolveLibrary prefers the redis cache and falls back to the database.
// Cache errors degrade to database reads, never to request failures.
func (f *LibraryFlowImpl) ResolveLibrary(ctx context.Context, identifier string) (*models.Library, error) {
	if f.rc != nil {
		if bs, err := f.rc.Get(ctx, f.libraryCacheKey(identifier)).Bytes(); err == nil && len(bs) > 0 {
			var library models.Library
			if err := json.Unmarshal(bs, &library); err == nil {
				return &library, nil
			}
		}
	}

	library, err := f.libraryRepo.ByIdentifier(ctx, identifier)
	if err != nil {
		return nil, NewBusinessError("LIBRARY_LOOKUP_FAILED", "Library lookup failed", err)
	}
	if library == nil {
		return nil, NewBusinessError("LIBRARY_NOT_FOUND", "Library not found", ErrLibraryNotFound)
	}

	if f.rc != nil {
		if bs, err := json.Marshal(library); err == nil {
			if err := f.rc.Set(ctx, f.libraryCacheKey(identifier), bs, f.cacheConfig.LibraryTTL).Err(); err != nil {
				f.logger.Warn().Err(err).Str("identifier", identifier).Msg("failed to cache library")
			}
		}
	}

	return library, nil
}

func (f *LibraryFlowImpl) invalidateCache(ctx context.Context, identifiers ...string) {
	if f.rc == nil {
		return
	}
	for _, identifier := range identifiers {
		if err := f.rc.Del(ctx, f.libraryCacheKey(identifier)).Err(); err != nil {
			f.logger.Warn().Err(err).Str("identifier", identifier).Msg("failed to invalidate library cache")
		}
	}
}

func (f *LibraryFlowImpl) attachStates(ctx context.Context, library *models.Library, states []string) error {
	for _, abbr := range states {
		place, err := f.placeRepo.ByAbbreviation(ctx, strings.ToUpper(abbr))
		if err != nil {
			return err
		}
		if place == nil {
			return fmt.Errorf("unknown state %q", abbr)
		}
		link := &models.LibraryPlace{LibraryID: library.ID, PlaceID: place.ID}
		if err := f.libraryPlaceRepo.Save(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

func (f *LibraryFlowImpl) replaceStates(ctx context.Context, library *models.Library, states []string) error {
	if err := f.libraryPlaceRepo.DeleteByLibrary(ctx, library.ID); err != nil {
		return err
	}
	return f.attachStates(ctx, library, states)
}

func (f *LibraryFlowImpl) servedStates(ctx context.Context, libraryID uint) ([]string, error) {
	links, err := f.libraryPlaceRepo.ListByLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	states := make([]string, 0, len(links))
	for _, link := range links {
		place, err := f.placeRepo.ByID(ctx, link.PlaceID)
		if err != nil || place == nil {
			continue
		}
		if place.Abbreviation != nil {
			states = append(states, *place.Abbreviation)
		}
	}
	return states, nil
}

// LibraryToDTO maps a library model to its API representation
func LibraryToDTO(library *models.Library, states []string) dto.LibraryDTO {
	return dto.LibraryDTO{
		ID:                   library.ID,
		UUID:                 library.UUID.String(),
		Name:                 library.Name,
		Identifier:           library.Identifier,
		Phone:                library.Phone,
		Email:                library.Email,
		TermsConditionsURL:   library.TermsConditionsURL,
		PrivacyURL:           library.PrivacyURL,
		Prefix:               library.Prefix,
		NumberingMode:        library.NumberingMode,
		SequenceStartNumber:  library.SequenceStartNumber,
		SequenceEndNumber:    library.SequenceEndNumber,
		SequenceDown:         library.IsDescending(),
		BulkUploadPrefix:     library.BulkUploadPrefix,
		AllowBulkCardUploads: utils.IsTrue(library.AllowBulkCardUploads),
		CardValidityMonths:   library.CardValidityMonths,
		BarcodeText:          library.BarcodeText,
		PinText:              library.PinText,
		States:               states,
		CreatedAt:            library.CreatedAt,
	}
}
