package businessflow_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/app/services"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
	"github.com/virtuallibrarycard/vlc/repository"
	testingutil "github.com/virtuallibrarycard/vlc/testing"
)

// flowEnv wires repositories, services, and flows against a test database.
type flowEnv struct {
	DB       *testingutil.TestDB
	Fixtures *testingutil.TestFixtures

	PatronRepo       repository.PatronRepository
	LibraryRepo      repository.LibraryRepository
	CardRepo         repository.LibraryCardRepository
	PlaceRepo        repository.PlaceRepository
	LibraryPlaceRepo repository.LibraryPlaceRepository
	SequenceRepo     repository.SequenceRepository
	AuditRepo        repository.AuditLogRepository
	JobRepo          repository.BulkUploadJobRepository

	Email        *services.MockEmailProvider
	Notifier     services.NotificationService
	TokenService services.TokenService

	Generator *businessflow.CardNumberGeneratorImpl
	CardFlow  businessflow.LibraryCardFlow
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()

	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(testDB.Cleanup)

	logger := zerolog.Nop()
	email := services.NewMockEmailProvider()
	notifier := services.NewNotificationService(email, logger)

	tokenService, err := services.NewTokenService(
		"test-secret-key-that-is-long-enough", time.Hour, time.Hour, "test-issuer")
	require.NoError(t, err)

	env := &flowEnv{
		DB:               testDB,
		Fixtures:         testingutil.NewTestFixtures(testDB),
		PatronRepo:       repository.NewPatronRepository(testDB.DB),
		LibraryRepo:      repository.NewLibraryRepository(testDB.DB),
		CardRepo:         repository.NewLibraryCardRepository(testDB.DB),
		PlaceRepo:        repository.NewPlaceRepository(testDB.DB),
		LibraryPlaceRepo: repository.NewLibraryPlaceRepository(testDB.DB),
		SequenceRepo:     repository.NewSequenceRepository(testDB.DB),
		AuditRepo:        repository.NewAuditLogRepository(testDB.DB),
		JobRepo:          repository.NewBulkUploadJobRepository(testDB.DB),
		Email:            email,
		Notifier:         notifier,
		TokenService:     tokenService,
	}

	env.Generator = businessflow.NewCardNumberGenerator(
		env.LibraryRepo,
		env.CardRepo,
		env.SequenceRepo,
		env.PatronRepo,
		services.NewCensor(logger),
		notifier,
		testDB.DB,
		logger,
	)

	env.CardFlow = businessflow.NewLibraryCardFlow(
		env.CardRepo,
		env.PatronRepo,
		env.LibraryRepo,
		env.AuditRepo,
		env.Generator,
		notifier,
		testDB.DB,
		logger,
	)

	return env
}
