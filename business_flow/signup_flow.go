// Package businessflow contains the core business logic and use cases for patron and card workflows
package businessflow

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/rs/zerolog"

	"github.com/virtuallibrarycard/vlc/app/dto"
	"github.com/virtuallibrarycard/vlc/app/services"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

// SignupFlow handles patron self-registration and email verification
type SignupFlow interface {
	Signup(ctx context.Context, req *dto.SignupRequest, metadata *ClientMetadata) (*dto.SignupResponse, error)
	VerifyEmail(ctx context.Context, req *dto.EmailVerificationRequest, metadata *ClientMetadata) (*dto.EmailVerificationResponse, error)
}

// SignupFlowImpl implements the signup business flow
type SignupFlowImpl struct {
	patronRepo       repository.PatronRepository
	placeRepo        repository.PlaceRepository
	libraryPlaceRepo repository.LibraryPlaceRepository
	auditRepo        repository.AuditLogRepository
	libraryFlow      LibraryFlow
	cardFlow         LibraryCardFlow
	tokenService     services.TokenService
	captchaService   services.CaptchaService
	notificationSvc  services.NotificationService
	publicBaseURL    string
	db               *gorm.DB
	logger           zerolog.Logger
}

// NewSignupFlow creates a new signup flow instance
func NewSignupFlow(
	patronRepo repository.PatronRepository,
	placeRepo repository.PlaceRepository,
	libraryPlaceRepo repository.LibraryPlaceRepository,
	auditRepo repository.AuditLogRepository,
	libraryFlow LibraryFlow,
	cardFlow LibraryCardFlow,
	tokenService services.TokenService,
	captchaService services.CaptchaService,
	notificationSvc services.NotificationService,
	publicBaseURL string,
	db *gorm.DB,
	logger zerolog.Logger,
) SignupFlow {
	return &SignupFlowImpl{
		patronRepo:       patronRepo,
		placeRepo:        placeRepo,
		libraryPlaceRepo: libraryPlaceRepo,
		auditRepo:        auditRepo,
		libraryFlow:      libraryFlow,
		cardFlow:         cardFlow,
		tokenService:     tokenService,
		captchaService:   captchaService,
		notificationSvc:  notificationSvc,
		publicBaseURL:    strings.TrimRight(publicBaseURL, "/"),
		db:               db,
		logger:           logger.With().Str("component", "signup_flow").Logger(),
	}
}

// Signup registers a patron with a library and issues their first card
func (s *SignupFlowImpl) Signup(ctx context.Context, req *dto.SignupRequest, metadata *ClientMetadata) (*dto.SignupResponse, error) {
	if s.captchaService != nil {
		if !s.captchaService.Verify(ctx, req.CaptchaID, float64(req.CaptchaAngle)) {
			return nil, NewBusinessError("CAPTCHA_FAILED", "Captcha verification failed", ErrInvalidCaptcha)
		}
	}

	library, err := s.libraryFlow.ResolveLibrary(ctx, req.LibraryIdentifier)
	if err != nil {
		return nil, err
	}

	if err := s.validateSignupRequest(ctx, req, library); err != nil {
		return nil, NewBusinessError("SIGNUP_VALIDATION_FAILED", "Signup validation failed", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, NewBusinessError("SIGNUP_FAILED", "Signup failed", err)
	}

	patron := &models.Patron{
		Email:              strings.ToLower(req.Email),
		PasswordHash:       string(passwordHash),
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		StreetAddressLine1: req.StreetAddressLine1,
		StreetAddressLine2: req.StreetAddressLine2,
		City:               req.City,
		Zip:                req.Zip,
		LibraryID:          library.ID,
		Over13:             req.Over13,
		EmailVerified:      utils.ToPtr(false),
	}
	if req.CountryCode != "" {
		patron.CountryCode = strings.ToUpper(req.CountryCode)
	}
	if req.USState != nil {
		if place, err := s.placeRepo.ByAbbreviation(ctx, strings.ToUpper(*req.USState)); err == nil && place != nil {
			patron.PlaceID = &place.ID
		}
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.patronRepo.Save(txCtx, patron)
	})
	if err != nil {
		errMsg := fmt.Sprintf("Signup failed: %s", err.Error())
		_ = writeAuditLog(ctx, s.auditRepo, nil, models.AuditActionSignupFailed, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("SIGNUP_FAILED", "Signup failed", err)
	}

	// Card issuance runs after the patron exists; a numbering failure leaves
	// the account in place so support can issue a card manually.
	var cardNumber *string
	card, _, err := s.cardFlow.IssueCard(ctx, patron, library, nil)
	if err != nil {
		errMsg := fmt.Sprintf("Card issuance during signup failed: %s", err.Error())
		_ = writeAuditLog(ctx, s.auditRepo, patron, models.AuditActionCardCreationFailed, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("CARD_CREATION_FAILED", "Card creation failed", err)
	}
	if card.Number != "" {
		cardNumber = &card.Number
	}

	msg := fmt.Sprintf("Signup completed for patron %d at library %s", patron.ID, library.Identifier)
	_ = writeAuditLog(ctx, s.auditRepo, patron, models.AuditActionSignupInitiated, msg, true, nil, metadata)

	verificationSent := s.sendVerificationEmail(library, patron, metadata)

	return &dto.SignupResponse{
		Message:               "Signup successful. Please verify your email address.",
		PatronID:              patron.ID,
		CardNumber:            cardNumber,
		VerificationEmailSent: verificationSent,
		EmailTarget:           maskEmail(patron.Email),
	}, nil
}

func (s *SignupFlowImpl) validateSignupRequest(ctx context.Context, req *dto.SignupRequest, library *models.Library) error {
	existing, err := s.patronRepo.ByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrEmailAlreadyExists
	}

	if utils.IsTrue(library.PatronAddressMandatory) {
		if req.StreetAddressLine1 == nil || req.City == nil || req.USState == nil || req.Zip == nil {
			return ErrAddressRequired
		}
	}

	if utils.IsTrue(library.AgeVerificationMandatory) && !utils.IsTrue(req.Over13) {
		return ErrAgeConsentRequired
	}

	if req.USState != nil {
		eligible, err := s.stateEligible(ctx, library, *req.USState)
		if err != nil {
			return err
		}
		if !eligible {
			return ErrPlaceNotEligible
		}
	}

	return nil
}

// stateEligible reports whether the given state is inside the library's
// service area. A library with no configured places serves everyone.
func (s *SignupFlowImpl) stateEligible(ctx context.Context, library *models.Library, state string) (bool, error) {
	links, err := s.libraryPlaceRepo.ListByLibrary(ctx, library.ID)
	if err != nil {
		return false, err
	}
	if len(links) == 0 {
		return true, nil
	}

	place, err := s.placeRepo.ByAbbreviation(ctx, strings.ToUpper(state))
	if err != nil {
		return false, err
	}
	if place == nil {
		return false, nil
	}

	served := make(map[uint]struct{}, len(links))
	for _, link := range links {
		served[link.PlaceID] = struct{}{}
	}

	if _, ok := served[place.ID]; ok {
		return true, nil
	}

	ancestors, err := s.placeRepo.Ancestors(ctx, place.ID)
	if err != nil {
		return false, err
	}
	for _, ancestor := range ancestors {
		if _, ok := served[ancestor.ID]; ok {
			return true, nil
		}
	}

	return false, nil
}

func (s *SignupFlowImpl) sendVerificationEmail(library *models.Library, patron *models.Patron, metadata *ClientMetadata) bool {
	token, err := s.tokenService.GenerateVerificationToken(patron.ID, patron.Email)
	if err != nil {
		s.logger.Error().Err(err).Uint("patron_id", patron.ID).Msg("failed to generate verification token")
		return false
	}

	verifyURL := fmt.Sprintf("%s/api/v1/verify?token=%s", s.publicBaseURL, token)

	go func() {
		if err := s.notificationSvc.SendVerificationEmail(library, patron, verifyURL); err != nil {
			s.logger.Error().Err(err).Str("email", patron.Email).Msg("failed to send verification email")
			errMsg := fmt.Sprintf("Failed to send verification email: %v", err)
			_ = writeAuditLog(context.Background(), s.auditRepo, patron, models.AuditActionVerifyEmailFailed, errMsg, false, &errMsg, metadata)
		}
	}()

	return true
}

// VerifyEmail marks the patron's email as verified based on a signed token
func (s *SignupFlowImpl) VerifyEmail(ctx context.Context, req *dto.EmailVerificationRequest, metadata *ClientMetadata) (*dto.EmailVerificationResponse, error) {
	claims, err := s.tokenService.ValidateVerificationToken(req.Token)
	if err != nil {
		_ = writeAuditLog(ctx, s.auditRepo, nil, models.AuditActionVerificationFailed, "Invalid verification token", false, nil, metadata)
		return nil, NewBusinessError("VERIFICATION_FAILED", "Email verification failed", ErrInvalidToken)
	}

	patron, err := s.patronRepo.ByID(ctx, claims.PatronID)
	if err != nil {
		return nil, NewBusinessError("VERIFICATION_FAILED", "Email verification failed", err)
	}
	if patron == nil || !strings.EqualFold(patron.Email, claims.Email) {
		return nil, NewBusinessError("VERIFICATION_FAILED", "Email verification failed", ErrInvalidToken)
	}

	if utils.IsTrue(patron.EmailVerified) {
		return &dto.EmailVerificationResponse{
			Message:  "Email address was already verified",
			PatronID: patron.ID,
			Verified: true,
		}, nil
	}

	if err := s.patronRepo.MarkEmailVerified(ctx, patron.ID); err != nil {
		return nil, NewBusinessError("VERIFICATION_FAILED", "Email verification failed", err)
	}

	msg := fmt.Sprintf("Email verified for patron %d", patron.ID)
	_ = writeAuditLog(ctx, s.auditRepo, patron, models.AuditActionEmailVerified, msg, true, nil, metadata)

	return &dto.EmailVerificationResponse{
		Message:  "Email address verified successfully",
		PatronID: patron.ID,
		Verified: true,
	}, nil
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return email
	}
	return email[:1] + "****" + email[at:]
}
