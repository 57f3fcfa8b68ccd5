package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/app/services"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	testingutil "github.com/virtuallibrarycard/vlc/testing"
	"github.com/virtuallibrarycard/vlc/utils"
)

type schedulerEnv struct {
	DB       *testingutil.TestDB
	Fixtures *testingutil.TestFixtures
	Email    *services.MockEmailProvider
	Sched    *ExpiryScheduler
}

func newSchedulerEnv(t *testing.T, opts ExpirySchedulerOptions) *schedulerEnv {
	t.Helper()

	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(testDB.Cleanup)

	email := services.NewMockEmailProvider()
	sched := NewExpiryScheduler(
		repository.NewLibraryCardRepository(testDB.DB),
		repository.NewBulkUploadJobRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		services.NewNotificationService(email, zerolog.Nop()),
		zerolog.Nop(),
		opts,
	)

	return &schedulerEnv{
		DB:       testDB,
		Fixtures: testingutil.NewTestFixtures(testDB),
		Email:    email,
		Sched:    sched,
	}
}

func TestExpirationReminders(t *testing.T) {
	env := newSchedulerEnv(t, ExpirySchedulerOptions{ReminderDays: 30})
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("EX")
	require.NoError(t, err)

	expiring, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)
	card, err := env.Fixtures.CreateTestCard(expiring, library, "EX000000000001")
	require.NoError(t, err)
	card.ExpirationDate = utils.ToPtr(utils.UTCNow().AddDate(0, 0, 10))
	require.NoError(t, env.DB.DB.Save(card).Error)

	farOut, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)
	farCard, err := env.Fixtures.CreateTestCard(farOut, library, "EX000000000002")
	require.NoError(t, err)
	farCard.ExpirationDate = utils.ToPtr(utils.UTCNow().AddDate(0, 0, 90))
	require.NoError(t, env.DB.DB.Save(farCard).Error)

	unverified, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)
	unverified.EmailVerified = utils.ToPtr(false)
	require.NoError(t, env.DB.DB.Save(unverified).Error)
	unvCard, err := env.Fixtures.CreateTestCard(unverified, library, "EX000000000003")
	require.NoError(t, err)
	unvCard.ExpirationDate = utils.ToPtr(utils.UTCNow().AddDate(0, 0, 10))
	require.NoError(t, env.DB.DB.Save(unvCard).Error)

	env.Sched.runOnce(ctx)

	assert.Len(t, env.Email.SentTo(expiring.Email), 1)
	assert.Empty(t, env.Email.SentTo(farOut.Email))
	assert.Empty(t, env.Email.SentTo(unverified.Email))

	t.Run("ReminderSentOncePerCard", func(t *testing.T) {
		env.Sched.runOnce(ctx)
		assert.Len(t, env.Email.SentTo(expiring.Email), 1)
	})
}

func TestFailStaleJobs(t *testing.T) {
	env := newSchedulerEnv(t, ExpirySchedulerOptions{StaleJobAge: time.Hour})
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("SJ")
	require.NoError(t, err)

	stale := &models.BulkUploadJob{
		UUID:      uuid.New(),
		LibraryID: library.ID,
		Status:    models.BulkUploadStatusRunning,
	}
	require.NoError(t, env.DB.DB.Create(stale).Error)
	require.NoError(t, env.DB.DB.Model(stale).
		Update("created_at", utils.UTCNow().Add(-2*time.Hour)).Error)

	fresh := &models.BulkUploadJob{
		UUID:      uuid.New(),
		LibraryID: library.ID,
		Status:    models.BulkUploadStatusRunning,
	}
	require.NoError(t, env.DB.DB.Create(fresh).Error)

	env.Sched.runOnce(ctx)

	var reloaded models.BulkUploadJob
	require.NoError(t, env.DB.DB.First(&reloaded, stale.ID).Error)
	assert.Equal(t, models.BulkUploadStatusFailed, reloaded.Status)
	require.NotNil(t, reloaded.ErrorMessage)
	assert.Equal(t, "abandoned after service restart", *reloaded.ErrorMessage)

	var untouched models.BulkUploadJob
	require.NoError(t, env.DB.DB.First(&untouched, fresh.ID).Error)
	assert.Equal(t, models.BulkUploadStatusRunning, untouched.Status)
}
