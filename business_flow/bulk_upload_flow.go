package businessflow

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/virtuallibrarycard/vlc/app/dto"
	"github.com/virtuallibrarycard/vlc/app/services"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

var bulkRequiredColumns = []string{"id", "first_name", "email"}

var bulkOptionalColumns = []string{"last_name", "city", "us_state", "zip"}

// BulkUploadFlow handles admin bulk card uploads. Processing is asynchronous:
// Upload validates and parses the file synchronously, then hands the rows to
// a background goroutine and e-mails the outcome report to the admin.
type BulkUploadFlow interface {
	Upload(ctx context.Context, libraryIdentifier, filename string, file io.Reader, admin *models.Patron, metadata *ClientMetadata) (*dto.BulkUploadResponse, error)
	GetJob(ctx context.Context, jobUUID string) (*dto.BulkUploadJobDTO, error)
}

// BulkUploadFlowImpl implements the bulk upload business flow
type BulkUploadFlowImpl struct {
	jobRepo         repository.BulkUploadJobRepository
	patronRepo      repository.PatronRepository
	libraryRepo     repository.LibraryRepository
	placeRepo       repository.PlaceRepository
	auditRepo       repository.AuditLogRepository
	cardFlow        LibraryCardFlow
	notificationSvc services.NotificationService
	db              *gorm.DB
	logger          zerolog.Logger

	// MaxRows caps how many data rows one upload may carry.
	MaxRows int
}

// NewBulkUploadFlow creates a new bulk upload flow instance
func NewBulkUploadFlow(
	jobRepo repository.BulkUploadJobRepository,
	patronRepo repository.PatronRepository,
	libraryRepo repository.LibraryRepository,
	placeRepo repository.PlaceRepository,
	auditRepo repository.AuditLogRepository,
	cardFlow LibraryCardFlow,
	notificationSvc services.NotificationService,
	db *gorm.DB,
	logger zerolog.Logger,
) BulkUploadFlow {
	return &BulkUploadFlowImpl{
		jobRepo:         jobRepo,
		patronRepo:      patronRepo,
		libraryRepo:     libraryRepo,
		placeRepo:       placeRepo,
		auditRepo:       auditRepo,
		cardFlow:        cardFlow,
		notificationSvc: notificationSvc,
		db:              db,
		logger:          logger.With().Str("component", "bulk_upload_flow").Logger(),
		MaxRows:         utils.BulkUploadMaxRows,
	}
}

type bulkRow struct {
	line   int
	values map[string]string
}

// Upload validates the library and the file, records a job, and starts
// background processing.
func (f *BulkUploadFlowImpl) Upload(ctx context.Context, libraryIdentifier, filename string, file io.Reader, admin *models.Patron, metadata *ClientMetadata) (*dto.BulkUploadResponse, error) {
	library, err := f.libraryRepo.ByIdentifier(ctx, libraryIdentifier)
	if err != nil {
		return nil, NewBusinessError("BULK_UPLOAD_FAILED", "Bulk upload failed", err)
	}
	if library == nil {
		return nil, NewBusinessError("LIBRARY_NOT_FOUND", "Library not found", ErrLibraryNotFound)
	}
	if !utils.IsTrue(library.AllowBulkCardUploads) {
		return nil, NewBusinessError("BULK_UPLOADS_DISABLED", "Bulk card uploads are not enabled for this library", ErrBulkUploadsDisabled)
	}
	if library.BulkUploadPrefix == nil || *library.BulkUploadPrefix == "" {
		return nil, NewBusinessError("BULK_UPLOAD_PREFIX_MISSING", "Library has no bulk upload prefix configured", ErrBulkUploadPrefixMissing)
	}

	rows, err := f.parseFile(filename, file)
	if err != nil {
		return nil, NewBusinessError("BULK_UPLOAD_INVALID_FILE", "Bulk upload file rejected", err)
	}

	job := &models.BulkUploadJob{
		UUID:      uuid.New(),
		LibraryID: library.ID,
		Status:    models.BulkUploadStatusPending,
		TotalRows: len(rows),
	}
	if admin != nil {
		job.AdminPatronID = &admin.ID
	}
	if err := f.jobRepo.Save(ctx, job); err != nil {
		return nil, NewBusinessError("BULK_UPLOAD_FAILED", "Bulk upload failed", err)
	}

	msg := fmt.Sprintf("Bulk upload %s started for library %s with %d rows", job.UUID, library.Identifier, len(rows))
	_ = writeAuditLog(ctx, f.auditRepo, admin, models.AuditActionBulkUploadStarted, msg, true, nil, metadata)

	// Fire-and-forget: the upload request returns immediately and the admin
	// learns the outcome from the e-mailed report.
	go f.processJob(context.Background(), job, library, admin, rows, metadata)

	return &dto.BulkUploadResponse{
		Message:   "Bulk upload accepted. A report will be emailed when processing finishes.",
		JobUUID:   job.UUID.String(),
		TotalRows: len(rows),
	}, nil
}

func (f *BulkUploadFlowImpl) parseFile(filename string, file io.Reader) ([]bulkRow, error) {
	var records [][]string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		records, err = csv.NewReader(file).ReadAll()
	case ".xlsx":
		records, err = readXLSX(file)
	default:
		return nil, ErrBulkUploadBadFormat
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse upload file: %w", err)
	}

	if len(records) == 0 {
		return nil, ErrBulkUploadEmptyFile
	}

	columns, err := parseHeader(records[0])
	if err != nil {
		return nil, err
	}

	dataRows := records[1:]
	if len(dataRows) == 0 {
		return nil, ErrBulkUploadEmptyFile
	}
	if len(dataRows) > f.MaxRows {
		return nil, ErrBulkUploadTooManyRows
	}

	rows := make([]bulkRow, 0, len(dataRows))
	for i, record := range dataRows {
		values := make(map[string]string, len(columns))
		for col, idx := range columns {
			if idx < len(record) {
				values[col] = strings.TrimSpace(record[idx])
			}
		}
		rows = append(rows, bulkRow{line: i + 2, values: values})
	}

	if dups := duplicateRowValues(rows); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrBulkUploadDuplicateRows, strings.Join(dups, ", "))
	}

	return rows, nil
}

// duplicateRowValues collects ids and emails that appear in more than one
// data row. Any duplicate rejects the whole file before a single row is
// processed.
func duplicateRowValues(rows []bulkRow) []string {
	seenIDs := make(map[string]bool, len(rows))
	seenEmails := make(map[string]bool, len(rows))
	reported := make(map[string]bool)
	var dups []string

	for _, row := range rows {
		if id := row.values["id"]; id != "" {
			if seenIDs[id] && !reported[id] {
				reported[id] = true
				dups = append(dups, id)
			}
			seenIDs[id] = true
		}
		if email := strings.ToLower(row.values["email"]); email != "" {
			if seenEmails[email] && !reported[email] {
				reported[email] = true
				dups = append(dups, email)
			}
			seenEmails[email] = true
		}
	}

	return dups
}

// parseHeader maps known column names to their positions. Unknown columns
// are ignored; missing required or duplicated known columns are rejected.
func parseHeader(header []string) (map[string]int, error) {
	known := make(map[string]bool, len(bulkRequiredColumns)+len(bulkOptionalColumns))
	for _, col := range bulkRequiredColumns {
		known[col] = true
	}
	for _, col := range bulkOptionalColumns {
		known[col] = true
	}

	columns := make(map[string]int)
	for idx, raw := range header {
		col := strings.ToLower(strings.TrimSpace(raw))
		if !known[col] {
			continue
		}
		if _, dup := columns[col]; dup {
			return nil, fmt.Errorf("%w: %s", ErrBulkUploadHeaderDup, col)
		}
		columns[col] = idx
	}

	for _, col := range bulkRequiredColumns {
		if _, ok := columns[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrBulkUploadHeadersMissing, col)
		}
	}

	return columns, nil
}

func readXLSX(file io.Reader) ([][]string, error) {
	xf, err := excelize.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = xf.Close() }()

	sheets := xf.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrBulkUploadEmptyFile
	}

	return xf.GetRows(sheets[0])
}

func (f *BulkUploadFlowImpl) processJob(ctx context.Context, job *models.BulkUploadJob, library *models.Library, admin *models.Patron, rows []bulkRow, metadata *ClientMetadata) {
	defer func() {
		if r := recover(); r != nil {
			errMsg := fmt.Sprintf("panic while processing bulk upload: %v", r)
			f.logger.Error().Str("job", job.UUID.String()).Msg(errMsg)
			_ = f.jobRepo.UpdateStatus(ctx, job.ID, models.BulkUploadStatusFailed, 0, 0, &errMsg)
		}
	}()

	_ = f.jobRepo.UpdateStatus(ctx, job.ID, models.BulkUploadStatusRunning, 0, 0, nil)

	results := make([]dto.BulkUploadRowResult, 0, len(rows))
	succeeded, failed := 0, 0

	for _, row := range rows {
		result := f.processRow(ctx, library, row)
		if result.Success {
			succeeded++
		} else {
			failed++
		}
		results = append(results, result)
	}

	status := models.BulkUploadStatusDone
	var statusErr *string
	if succeeded == 0 && failed > 0 {
		status = models.BulkUploadStatusFailed
		statusErr = utils.ToPtr("all rows failed")
	}
	_ = f.jobRepo.UpdateStatus(ctx, job.ID, status, succeeded, failed, statusErr)

	msg := fmt.Sprintf("Bulk upload %s finished: %d succeeded, %d failed", job.UUID, succeeded, failed)
	_ = writeAuditLog(ctx, f.auditRepo, admin, models.AuditActionBulkUploadFinished, msg, failed == 0, nil, metadata)
	f.logger.Info().
		Str("job", job.UUID.String()).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("bulk upload finished")

	if admin == nil {
		return
	}
	report, err := buildBulkUploadReport(job, results)
	if err != nil {
		f.logger.Error().Err(err).Str("job", job.UUID.String()).Msg("failed to build bulk upload report")
		return
	}
	if err := f.notificationSvc.SendBulkUploadReport(library, admin, report); err != nil {
		f.logger.Error().Err(err).Str("job", job.UUID.String()).Msg("failed to send bulk upload report")
	}
}

// processRow creates or reuses the patron for the row and issues a card
// numbered bulk upload prefix + external id.
func (f *BulkUploadFlowImpl) processRow(ctx context.Context, library *models.Library, row bulkRow) dto.BulkUploadRowResult {
	result := dto.BulkUploadRowResult{
		RowNumber:  row.line,
		ExternalID: row.values["id"],
		Email:      strings.ToLower(row.values["email"]),
	}

	for _, col := range bulkRequiredColumns {
		if row.values[col] == "" {
			result.Error = fmt.Sprintf("missing value for required column %q", col)
			return result
		}
	}

	number := *library.BulkUploadPrefix + row.values["id"]

	patron, err := f.patronRepo.ByEmail(ctx, result.Email)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if patron == nil {
		patron, err = f.createBulkPatron(ctx, library, row)
	} else {
		err = f.updateBulkPatron(ctx, patron, row)
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	card, _, err := f.cardFlow.IssueCard(ctx, patron, library, &number)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.CardNumber = card.Number
	result.Success = true
	return result
}

// createBulkPatron registers a patron from a row. Bulk patrons get an
// unusable random password; they reset it through the normal flow before
// first login.
func (f *BulkUploadFlowImpl) createBulkPatron(ctx context.Context, library *models.Library, row bulkRow) (*models.Patron, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	patron := &models.Patron{
		Email:         strings.ToLower(row.values["email"]),
		PasswordHash:  string(passwordHash),
		LibraryID:     library.ID,
		Over13:        utils.ToPtr(true),
		EmailVerified: utils.ToPtr(false),
	}
	f.applyRowFields(ctx, patron, row)

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		return f.patronRepo.Save(txCtx, patron)
	})
	if err != nil {
		return nil, err
	}
	return patron, nil
}

// updateBulkPatron refreshes an existing patron's name and address fields
// from the uploaded row.
func (f *BulkUploadFlowImpl) updateBulkPatron(ctx context.Context, patron *models.Patron, row bulkRow) error {
	f.applyRowFields(ctx, patron, row)

	return repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		return f.patronRepo.Save(txCtx, patron)
	})
}

func (f *BulkUploadFlowImpl) applyRowFields(ctx context.Context, patron *models.Patron, row bulkRow) {
	patron.FirstName = row.values["first_name"]
	if v := row.values["last_name"]; v != "" {
		patron.LastName = &v
	}
	if v := row.values["city"]; v != "" {
		patron.City = &v
	}
	if v := row.values["zip"]; v != "" {
		patron.Zip = &v
	}
	if v := row.values["us_state"]; v != "" {
		if place, err := f.placeRepo.ByAbbreviation(ctx, strings.ToUpper(v)); err == nil && place != nil {
			patron.PlaceID = &place.ID
		}
	}
}

func buildBulkUploadReport(job *models.BulkUploadJob, results []dto.BulkUploadRowResult) (services.EmailAttachment, error) {
	xf := excelize.NewFile()
	defer func() { _ = xf.Close() }()

	sheet := xf.GetSheetName(0)
	headers := []string{"Row", "ID", "Email", "Card Number", "Status", "Error"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = xf.SetCellValue(sheet, cell, h)
	}

	for i, result := range results {
		status := "OK"
		if !result.Success {
			status = "FAILED"
		}
		values := []any{result.RowNumber, result.ExternalID, result.Email, result.CardNumber, status, result.Error}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = xf.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := xf.WriteToBuffer()
	if err != nil {
		return services.EmailAttachment{}, err
	}

	return services.EmailAttachment{
		Filename:    fmt.Sprintf("bulk_upload_report_%s.xlsx", job.UUID),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        buf.Bytes(),
	}, nil
}

// GetJob returns the status of a bulk upload job
func (f *BulkUploadFlowImpl) GetJob(ctx context.Context, jobUUID string) (*dto.BulkUploadJobDTO, error) {
	parsed, err := uuid.Parse(jobUUID)
	if err != nil {
		return nil, NewBusinessError("BULK_UPLOAD_JOB_NOT_FOUND", "Bulk upload job not found", ErrBulkUploadJobNotFound)
	}

	jobs, err := f.jobRepo.ByFilter(ctx, models.BulkUploadJobFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, NewBusinessError("BULK_UPLOAD_FAILED", "Bulk upload lookup failed", err)
	}
	if len(jobs) == 0 {
		return nil, NewBusinessError("BULK_UPLOAD_JOB_NOT_FOUND", "Bulk upload job not found", ErrBulkUploadJobNotFound)
	}

	job := jobs[0]
	return &dto.BulkUploadJobDTO{
		UUID:         job.UUID.String(),
		LibraryID:    job.LibraryID,
		Status:       job.Status,
		TotalRows:    job.TotalRows,
		SucceededRow: job.SucceededRow,
		FailedRows:   job.FailedRows,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		FinishedAt:   job.FinishedAt,
	}, nil
}
