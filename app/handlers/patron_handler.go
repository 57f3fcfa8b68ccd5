package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/virtuallibrarycard/vlc/app/dto"
	"github.com/virtuallibrarycard/vlc/app/services"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
)

// PatronHandlerInterface defines the contract for patron-facing handlers
type PatronHandlerInterface interface {
	Signup(c fiber.Ctx) error
	VerifyEmail(c fiber.Ctx) error
	NewCaptcha(c fiber.Ctx) error
}

// PatronHandler handles signup and email verification requests
type PatronHandler struct {
	signupFlow     businessflow.SignupFlow
	captchaService services.CaptchaService
	validator      *validator.Validate
}

// NewPatronHandler creates a new patron handler
func NewPatronHandler(signupFlow businessflow.SignupFlow, captchaService services.CaptchaService) *PatronHandler {
	return &PatronHandler{
		signupFlow:     signupFlow,
		captchaService: captchaService,
		validator:      validator.New(),
	}
}

// Signup registers a patron with a library
// @Summary Patron registration
// @Description Register a patron with a library and issue their first card
// @Tags Patrons
// @Accept json
// @Produce json
// @Param request body dto.SignupRequest true "Patron registration data"
// @Success 201 {object} dto.APIResponse{data=dto.SignupResponse} "Signup successful"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Email already registered"
// @Router /api/v1/signup [post]
func (h *PatronHandler) Signup(c fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	result, err := h.signupFlow.Signup(requestContext(c), &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsEmailAlreadyExists(err) {
			return errorResponse(c, fiber.StatusConflict, "Email already exists", "EMAIL_EXISTS", nil)
		}
		if businessflow.IsInvalidCaptcha(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Captcha verification failed", "CAPTCHA_FAILED", nil)
		}
		if businessflow.IsLibraryNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Library not found", "LIBRARY_NOT_FOUND", nil)
		}
		if businessflow.IsCardNumberExhausted(err) {
			return errorResponse(c, fiber.StatusServiceUnavailable, "Could not create a unique card number", "CARD_NUMBER_EXHAUSTED", nil)
		}
		return errorResponse(c, fiber.StatusBadRequest, "Signup failed", "SIGNUP_FAILED", err.Error())
	}

	return successResponse(c, fiber.StatusCreated, result.Message, result)
}

// VerifyEmail confirms a patron's email address from the verification link
// @Summary Email verification
// @Description Verify a patron's email address with a signed token
// @Tags Patrons
// @Produce json
// @Param token query string true "Verification token"
// @Success 200 {object} dto.APIResponse{data=dto.EmailVerificationResponse} "Email verified"
// @Failure 400 {object} dto.APIResponse "Invalid or expired token"
// @Router /api/v1/verify [get]
func (h *PatronHandler) VerifyEmail(c fiber.Ctx) error {
	req := dto.EmailVerificationRequest{Token: c.Query("token")}
	if req.Token == "" {
		if err := c.Bind().JSON(&req); err != nil || req.Token == "" {
			return errorResponse(c, fiber.StatusBadRequest, "Verification token is required", "MISSING_TOKEN", nil)
		}
	}

	result, err := h.signupFlow.VerifyEmail(requestContext(c), &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsInvalidToken(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid or expired verification token", "INVALID_TOKEN", nil)
		}
		return errorResponse(c, fiber.StatusInternalServerError, "Email verification failed", "VERIFICATION_FAILED", nil)
	}

	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// NewCaptcha issues a rotate captcha challenge for the signup form
// @Summary New captcha challenge
// @Description Generate a rotate captcha challenge
// @Tags Patrons
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CaptchaChallengeResponse} "Captcha generated"
// @Router /api/v1/captcha [get]
func (h *PatronHandler) NewCaptcha(c fiber.Ctx) error {
	challenge, err := h.captchaService.Generate(requestContext(c))
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to generate captcha", "CAPTCHA_GENERATION_FAILED", nil)
	}

	return successResponse(c, fiber.StatusOK, "Captcha generated successfully", dto.CaptchaChallengeResponse{
		CaptchaID:   challenge.ID,
		ImageBase64: challenge.MasterImageBase64,
		ThumbBase64: challenge.ThumbImageBase64,
	})
}
