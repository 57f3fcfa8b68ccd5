package businessflow_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/utils"
)

func newBulkUploadFlow(env *flowEnv) businessflow.BulkUploadFlow {
	return businessflow.NewBulkUploadFlow(
		env.JobRepo,
		env.PatronRepo,
		env.LibraryRepo,
		env.PlaceRepo,
		env.AuditRepo,
		env.CardFlow,
		env.Notifier,
		env.DB.DB,
		zerolog.Nop(),
	)
}

func newBulkLibrary(t *testing.T, env *flowEnv, prefix, bulkPrefix string) *models.Library {
	t.Helper()
	library, err := env.Fixtures.CreateTestLibrary(prefix)
	require.NoError(t, err)
	library.AllowBulkCardUploads = utils.ToPtr(true)
	library.BulkUploadPrefix = utils.ToPtr(bulkPrefix)
	require.NoError(t, env.DB.DB.Save(library).Error)
	return library
}

func waitForJob(t *testing.T, env *flowEnv, flow businessflow.BulkUploadFlow, jobUUID string) *models.BulkUploadJob {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := flow.GetJob(context.Background(), jobUUID)
		if err != nil {
			return false
		}
		return job.Status == models.BulkUploadStatusDone || job.Status == models.BulkUploadStatusFailed
	}, 10*time.Second, 50*time.Millisecond)

	var job models.BulkUploadJob
	require.NoError(t, env.DB.DB.Where("uuid = ?", jobUUID).First(&job).Error)
	return &job
}

func TestBulkUploadValidation(t *testing.T) {
	env := newFlowEnv(t)
	flow := newBulkUploadFlow(env)
	ctx := context.Background()

	admin, err := env.Fixtures.CreateStaffPatron(newBulkLibrary(t, env, "BV", "BV"))
	require.NoError(t, err)

	t.Run("UploadsDisabled", func(t *testing.T) {
		library, err := env.Fixtures.CreateTestLibrary("BD")
		require.NoError(t, err)

		_, err = flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader("id,first_name,email\n"), admin, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsBulkUploadsDisabled(err))
	})

	t.Run("PrefixMissing", func(t *testing.T) {
		library, err := env.Fixtures.CreateTestLibrary("BP")
		require.NoError(t, err)
		library.AllowBulkCardUploads = utils.ToPtr(true)
		require.NoError(t, env.DB.DB.Save(library).Error)

		_, err = flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader("id,first_name,email\n"), admin, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrBulkUploadPrefixMissing)
	})

	library := newBulkLibrary(t, env, "BU", "BU")

	t.Run("BadExtension", func(t *testing.T) {
		_, err := flow.Upload(ctx, library.Identifier, "patrons.txt", strings.NewReader("id,first_name,email\n1,A,a@x.org\n"), admin, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrBulkUploadBadFormat)
	})

	t.Run("MissingRequiredColumn", func(t *testing.T) {
		_, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader("id,first_name\n1,A\n"), admin, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrBulkUploadHeadersMissing)
	})

	t.Run("DuplicateColumn", func(t *testing.T) {
		_, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader("id,first_name,email,email\n1,A,a@x.org,b@x.org\n"), admin, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrBulkUploadHeaderDup)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		body := "id,first_name,email\n7,Alice,alice@x.org\n7,Bob,bob@x.org\n"
		_, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader(body), admin, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrBulkUploadDuplicateRows)
		assert.Contains(t, err.Error(), "7")
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		body := "id,first_name,email\n8,Alice,dup@example.com\n9,Alice,DUP@example.com\n"
		_, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader(body), admin, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrBulkUploadDuplicateRows)
		assert.Contains(t, err.Error(), "dup@example.com")

		// No row of a rejected file is processed.
		patron, err := env.PatronRepo.ByEmail(ctx, "dup@example.com")
		require.NoError(t, err)
		assert.Nil(t, patron)
	})

	t.Run("EmptyFile", func(t *testing.T) {
		_, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader("id,first_name,email\n"), admin, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrBulkUploadEmptyFile)
	})

	t.Run("UnknownLibrary", func(t *testing.T) {
		_, err := flow.Upload(ctx, "no-such-library", "patrons.csv", strings.NewReader("id,first_name,email\n1,A,a@x.org\n"), admin, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsLibraryNotFound(err))
	})
}

func TestBulkUploadProcessing(t *testing.T) {
	env := newFlowEnv(t)
	flow := newBulkUploadFlow(env)
	ctx := context.Background()

	library := newBulkLibrary(t, env, "BW", "BW")
	admin, err := env.Fixtures.CreateStaffPatron(library)
	require.NoError(t, err)

	_, texas, _, err := env.Fixtures.CreateStateHierarchy("TX", "Texas", "Austin")
	require.NoError(t, err)

	csvBody := strings.Join([]string{
		"id,first_name,last_name,email,city,us_state,zip",
		"1001,Jane,Doe,jane@example.com,Austin,TX,78701",
		"1002,John,,john@example.com,,,",
		",Missing,,broken@example.com,,,",
	}, "\n")

	resp, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader(csvBody), admin, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalRows)
	require.NotEmpty(t, resp.JobUUID)

	job := waitForJob(t, env, flow, resp.JobUUID)
	assert.Equal(t, models.BulkUploadStatusDone, job.Status)
	assert.Equal(t, 2, job.SucceededRow)
	assert.Equal(t, 1, job.FailedRows)

	jane, err := env.PatronRepo.ByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, jane)
	assert.Equal(t, library.ID, jane.LibraryID)
	require.NotNil(t, jane.LastName)
	assert.Equal(t, "Doe", *jane.LastName)
	require.NotNil(t, jane.PlaceID)
	assert.Equal(t, texas.ID, *jane.PlaceID)
	assert.False(t, utils.IsTrue(jane.EmailVerified))

	card, err := env.CardRepo.ByNumber(ctx, "BW1001")
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, jane.ID, card.PatronID)

	missing, err := env.PatronRepo.ByEmail(ctx, "broken@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// The report e-mail goes out after the job status flips, so poll for it.
	require.Eventually(t, func() bool {
		return len(env.Email.SentTo(admin.Email)) > 0
	}, 10*time.Second, 50*time.Millisecond)
	reports := env.Email.SentTo(admin.Email)
	require.Len(t, reports[0].Attachments, 1)
	assert.Contains(t, reports[0].Attachments[0].Filename, resp.JobUUID)

	t.Run("AllRowsFailedMarksJobFailed", func(t *testing.T) {
		body := "id,first_name,email\n,NoID,broken2@example.com\n"
		resp, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader(body), admin, nil)
		require.NoError(t, err)

		job := waitForJob(t, env, flow, resp.JobUUID)
		assert.Equal(t, models.BulkUploadStatusFailed, job.Status)
		assert.Equal(t, 1, job.FailedRows)
	})

	t.Run("ExistingPatronKeepsActiveCard", func(t *testing.T) {
		body := "id,first_name,email\n2001,Jane,jane@example.com\n"
		resp, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader(body), admin, nil)
		require.NoError(t, err)

		job := waitForJob(t, env, flow, resp.JobUUID)
		assert.Equal(t, models.BulkUploadStatusDone, job.Status)
		assert.Equal(t, 1, job.SucceededRow)

		// The active card is reused; no second number is minted.
		card, err := env.CardRepo.ByNumber(ctx, "BW2001")
		require.NoError(t, err)
		assert.Nil(t, card)
	})

	t.Run("ReUploadRefreshesPatronFields", func(t *testing.T) {
		body := strings.Join([]string{
			"id,first_name,last_name,email,city,us_state,zip",
			"1001,Janet,Smith,jane@example.com,Dallas,TX,75201",
		}, "\n")
		resp, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader(body), admin, nil)
		require.NoError(t, err)

		job := waitForJob(t, env, flow, resp.JobUUID)
		assert.Equal(t, models.BulkUploadStatusDone, job.Status)
		assert.Equal(t, 1, job.SucceededRow)

		jane, err := env.PatronRepo.ByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		require.NotNil(t, jane)
		assert.Equal(t, "Janet", jane.FirstName)
		require.NotNil(t, jane.LastName)
		assert.Equal(t, "Smith", *jane.LastName)
		require.NotNil(t, jane.City)
		assert.Equal(t, "Dallas", *jane.City)
		require.NotNil(t, jane.PlaceID)
		assert.Equal(t, texas.ID, *jane.PlaceID)
	})
}

func TestBulkUploadRowLimit(t *testing.T) {
	env := newFlowEnv(t)
	flow := newBulkUploadFlow(env)
	if impl, ok := flow.(*businessflow.BulkUploadFlowImpl); ok {
		impl.MaxRows = 2
	}
	ctx := context.Background()

	library := newBulkLibrary(t, env, "BL", "BL")
	body := "id,first_name,email\n1,A,a@x.org\n2,B,b@x.org\n3,C,c@x.org\n"

	_, err := flow.Upload(ctx, library.Identifier, "patrons.csv", strings.NewReader(body), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, businessflow.ErrBulkUploadTooManyRows)
}

func TestBulkUploadGetJobNotFound(t *testing.T) {
	env := newFlowEnv(t)
	flow := newBulkUploadFlow(env)

	_, err := flow.GetJob(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.ErrorIs(t, err, businessflow.ErrBulkUploadJobNotFound)

	_, err = flow.GetJob(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, businessflow.ErrBulkUploadJobNotFound)
}
