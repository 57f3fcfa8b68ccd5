package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/virtuallibrarycard/vlc/app/dto"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
)

// CardHandlerInterface defines the contract for card administration handlers
type CardHandlerInterface interface {
	CreateCard(c fiber.Ctx) error
	CancelCard(c fiber.Ctx) error
}

// CardHandler handles admin card management requests
type CardHandler struct {
	cardFlow  businessflow.LibraryCardFlow
	validator *validator.Validate
}

// NewCardHandler creates a new card handler
func NewCardHandler(cardFlow businessflow.LibraryCardFlow) *CardHandler {
	return &CardHandler{
		cardFlow:  cardFlow,
		validator: validator.New(),
	}
}

// CreateCard issues a card for an existing patron
// @Summary Issue card
// @Description Issue a card for a patron; the number is generated unless supplied
// @Tags Cards
// @Accept json
// @Produce json
// @Param request body dto.CreateCardRequest true "Card data"
// @Success 201 {object} dto.APIResponse{data=dto.CardResponse} "Card issued"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Patron or library not found"
// @Security BearerAuth
// @Router /api/v1/admin/cards [post]
func (h *CardHandler) CreateCard(c fiber.Ctx) error {
	var req dto.CreateCardRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	result, err := h.cardFlow.NewCard(requestContext(c), &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsPatronNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Patron not found", "PATRON_NOT_FOUND", nil)
		}
		if businessflow.IsLibraryNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Library not found", "LIBRARY_NOT_FOUND", nil)
		}
		if businessflow.IsPrefixTooLong(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Library prefix is too long", "PREFIX_TOO_LONG", nil)
		}
		if businessflow.IsCardNumberExhausted(err) {
			return errorResponse(c, fiber.StatusServiceUnavailable, "Could not create a unique card number", "CARD_NUMBER_EXHAUSTED", nil)
		}
		return errorResponse(c, fiber.StatusBadRequest, "Card creation failed", "CARD_CREATION_FAILED", err.Error())
	}

	return successResponse(c, fiber.StatusCreated, result.Message, result)
}

// CancelCard cancels a card by number
// @Summary Cancel card
// @Tags Cards
// @Accept json
// @Produce json
// @Param request body dto.CancelCardRequest true "Card number"
// @Success 200 {object} dto.APIResponse{data=dto.CardResponse} "Card canceled"
// @Failure 404 {object} dto.APIResponse "Card not found"
// @Security BearerAuth
// @Router /api/v1/admin/cards/cancel [post]
func (h *CardHandler) CancelCard(c fiber.Ctx) error {
	var req dto.CancelCardRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	result, err := h.cardFlow.CancelCard(requestContext(c), &req, currentPatron(c), clientMetadata(c))
	if err != nil {
		if businessflow.IsCardNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Card not found", "CARD_NOT_FOUND", nil)
		}
		return errorResponse(c, fiber.StatusBadRequest, "Card cancellation failed", "CARD_CANCEL_FAILED", err.Error())
	}

	return successResponse(c, fiber.StatusOK, result.Message, result)
}
