package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/virtuallibrarycard/vlc/app/dto"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
)

// LibraryHandlerInterface defines the contract for library administration handlers
type LibraryHandlerInterface interface {
	CreateLibrary(c fiber.Ctx) error
	UpdateLibrary(c fiber.Ctx) error
	GetLibrary(c fiber.Ctx) error
	ListLibraries(c fiber.Ctx) error
	BulkUpload(c fiber.Ctx) error
	GetBulkUploadJob(c fiber.Ctx) error
}

// LibraryHandler handles admin library management requests
type LibraryHandler struct {
	libraryFlow    businessflow.LibraryFlow
	bulkUploadFlow businessflow.BulkUploadFlow
	validator      *validator.Validate
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(libraryFlow businessflow.LibraryFlow, bulkUploadFlow businessflow.BulkUploadFlow) *LibraryHandler {
	return &LibraryHandler{
		libraryFlow:    libraryFlow,
		bulkUploadFlow: bulkUploadFlow,
		validator:      validator.New(),
	}
}

// CreateLibrary creates a library
// @Summary Create library
// @Description Create a library with its card numbering configuration
// @Tags Libraries
// @Accept json
// @Produce json
// @Param request body dto.CreateLibraryRequest true "Library data"
// @Success 201 {object} dto.APIResponse{data=dto.LibraryResponse} "Library created"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Identifier already in use"
// @Security BearerAuth
// @Router /api/v1/admin/libraries [post]
func (h *LibraryHandler) CreateLibrary(c fiber.Ctx) error {
	var req dto.CreateLibraryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	result, err := h.libraryFlow.CreateLibrary(requestContext(c), &req, currentPatron(c), clientMetadata(c))
	if err != nil {
		if businessflow.IsLibraryIdentifierTaken(err) {
			return errorResponse(c, fiber.StatusConflict, "Library identifier already in use", "IDENTIFIER_TAKEN", nil)
		}
		if businessflow.IsPrefixTooLong(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Library prefix is too long", "PREFIX_TOO_LONG", nil)
		}
		return errorResponse(c, fiber.StatusBadRequest, "Library creation failed", "LIBRARY_CREATION_FAILED", err.Error())
	}

	return successResponse(c, fiber.StatusCreated, result.Message, result)
}

// UpdateLibrary applies a partial update to a library
// @Summary Update library
// @Description Update a library; changing the sequence start resets the counter
// @Tags Libraries
// @Accept json
// @Produce json
// @Param identifier path string true "Library identifier"
// @Param request body dto.UpdateLibraryRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.LibraryResponse} "Library updated"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Library not found"
// @Security BearerAuth
// @Router /api/v1/admin/libraries/{identifier} [patch]
func (h *LibraryHandler) UpdateLibrary(c fiber.Ctx) error {
	identifier := c.Params("identifier")

	var req dto.UpdateLibraryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	result, err := h.libraryFlow.UpdateLibrary(requestContext(c), identifier, &req, currentPatron(c), clientMetadata(c))
	if err != nil {
		if businessflow.IsLibraryNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Library not found", "LIBRARY_NOT_FOUND", nil)
		}
		if businessflow.IsPrefixTooLong(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Library prefix is too long", "PREFIX_TOO_LONG", nil)
		}
		return errorResponse(c, fiber.StatusBadRequest, "Library update failed", "LIBRARY_UPDATE_FAILED", err.Error())
	}

	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// GetLibrary returns one library
// @Summary Get library
// @Tags Libraries
// @Produce json
// @Param identifier path string true "Library identifier"
// @Success 200 {object} dto.APIResponse{data=dto.LibraryResponse} "Library"
// @Failure 404 {object} dto.APIResponse "Library not found"
// @Router /api/v1/libraries/{identifier} [get]
func (h *LibraryHandler) GetLibrary(c fiber.Ctx) error {
	result, err := h.libraryFlow.GetLibrary(requestContext(c), c.Params("identifier"))
	if err != nil {
		if businessflow.IsLibraryNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Library not found", "LIBRARY_NOT_FOUND", nil)
		}
		return errorResponse(c, fiber.StatusInternalServerError, "Library lookup failed", "LIBRARY_LOOKUP_FAILED", nil)
	}

	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// ListLibraries returns a page of libraries
// @Summary List libraries
// @Tags Libraries
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.APIResponse{data=dto.ListLibrariesResponse} "Libraries"
// @Security BearerAuth
// @Router /api/v1/admin/libraries [get]
func (h *LibraryHandler) ListLibraries(c fiber.Ctx) error {
	limit := fiber.Query(c, "limit", 50)
	offset := fiber.Query(c, "offset", 0)

	result, err := h.libraryFlow.ListLibraries(requestContext(c), limit, offset)
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to list libraries", "LIBRARY_LIST_FAILED", nil)
	}

	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// BulkUpload accepts a CSV or XLSX card upload for a library
// @Summary Bulk card upload
// @Description Upload a CSV/XLSX file of patrons; cards are issued in the background
// @Tags Libraries
// @Accept multipart/form-data
// @Produce json
// @Param identifier path string true "Library identifier"
// @Param file formData file true "CSV or XLSX file"
// @Success 202 {object} dto.APIResponse{data=dto.BulkUploadResponse} "Upload accepted"
// @Failure 400 {object} dto.APIResponse "Invalid file"
// @Failure 403 {object} dto.APIResponse "Uploads disabled for library"
// @Security BearerAuth
// @Router /api/v1/admin/libraries/{identifier}/bulk-upload [post]
func (h *LibraryHandler) BulkUpload(c fiber.Ctx) error {
	identifier := c.Params("identifier")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Upload file is required", "MISSING_FILE", nil)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Could not read upload file", "UNREADABLE_FILE", nil)
	}
	defer func() { _ = file.Close() }()

	result, err := h.bulkUploadFlow.Upload(requestContext(c), identifier, fileHeader.Filename, file, currentPatron(c), clientMetadata(c))
	if err != nil {
		if businessflow.IsLibraryNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Library not found", "LIBRARY_NOT_FOUND", nil)
		}
		if businessflow.IsBulkUploadsDisabled(err) {
			return errorResponse(c, fiber.StatusForbidden, "Bulk card uploads are not enabled for this library", "BULK_UPLOADS_DISABLED", nil)
		}
		return errorResponse(c, fiber.StatusBadRequest, "Bulk upload rejected", "BULK_UPLOAD_REJECTED", err.Error())
	}

	return successResponse(c, fiber.StatusAccepted, result.Message, result)
}

// GetBulkUploadJob returns the status of a bulk upload job
// @Summary Bulk upload job status
// @Tags Libraries
// @Produce json
// @Param uuid path string true "Job UUID"
// @Success 200 {object} dto.APIResponse{data=dto.BulkUploadJobDTO} "Job status"
// @Failure 404 {object} dto.APIResponse "Job not found"
// @Security BearerAuth
// @Router /api/v1/admin/bulk-uploads/{uuid} [get]
func (h *LibraryHandler) GetBulkUploadJob(c fiber.Ctx) error {
	result, err := h.bulkUploadFlow.GetJob(requestContext(c), c.Params("uuid"))
	if err != nil {
		return errorResponse(c, fiber.StatusNotFound, "Bulk upload job not found", "JOB_NOT_FOUND", nil)
	}

	return successResponse(c, fiber.StatusOK, "Bulk upload job retrieved", result)
}
