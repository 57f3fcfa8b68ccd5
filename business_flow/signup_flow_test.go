package businessflow_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/app/dto"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
	"github.com/virtuallibrarycard/vlc/config"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/utils"
)

func newSignupFlow(env *flowEnv) businessflow.SignupFlow {
	libraryFlow := businessflow.NewLibraryFlow(
		env.LibraryRepo,
		env.PlaceRepo,
		env.LibraryPlaceRepo,
		env.AuditRepo,
		env.Generator,
		nil,
		&config.CacheConfig{},
		env.DB.DB,
		zerolog.Nop(),
	)

	return businessflow.NewSignupFlow(
		env.PatronRepo,
		env.PlaceRepo,
		env.LibraryPlaceRepo,
		env.AuditRepo,
		libraryFlow,
		env.CardFlow,
		env.TokenService,
		nil, // captcha disabled in tests
		env.Notifier,
		"https://cards.example.org",
		env.DB.DB,
		zerolog.Nop(),
	)
}

func signupRequest(library *models.Library, email string) *dto.SignupRequest {
	return &dto.SignupRequest{
		LibraryIdentifier: library.Identifier,
		FirstName:         "Alice",
		Email:             email,
		Password:          "SecurePass123!",
		ConfirmPassword:   "SecurePass123!",
		Over13:            utils.ToPtr(true),
		CaptchaID:         "unused",
	}
}

func TestSignup(t *testing.T) {
	env := newFlowEnv(t)
	flow := newSignupFlow(env)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("SG")
	require.NoError(t, err)

	t.Run("SuccessfulSignup", func(t *testing.T) {
		resp, err := flow.Signup(ctx, signupRequest(library, "alice@example.com"), nil)
		require.NoError(t, err)
		require.NotNil(t, resp)

		assert.NotZero(t, resp.PatronID)
		require.NotNil(t, resp.CardNumber)
		assert.Len(t, *resp.CardNumber, utils.CardNumberTotalLength)
		assert.True(t, resp.VerificationEmailSent)
		assert.Contains(t, resp.EmailTarget, "****")

		patron, err := env.PatronRepo.ByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, patron)
		assert.False(t, utils.IsTrue(patron.EmailVerified))
		assert.Equal(t, library.ID, patron.LibraryID)
	})

	t.Run("DuplicateEmailRejected", func(t *testing.T) {
		_, err := flow.Signup(ctx, signupRequest(library, "alice@example.com"), nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsEmailAlreadyExists(err))
	})

	t.Run("UnknownLibraryRejected", func(t *testing.T) {
		req := signupRequest(library, "nobody@example.com")
		req.LibraryIdentifier = "no-such-library"
		_, err := flow.Signup(ctx, req, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsLibraryNotFound(err))
	})

	t.Run("AddressMandatory", func(t *testing.T) {
		strict, err := env.Fixtures.CreateTestLibrary("AD")
		require.NoError(t, err)
		strict.PatronAddressMandatory = utils.ToPtr(true)
		require.NoError(t, env.DB.DB.Save(strict).Error)

		_, err = flow.Signup(ctx, signupRequest(strict, "noaddress@example.com"), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrAddressRequired)
	})

	t.Run("AgeConsentMandatory", func(t *testing.T) {
		strict, err := env.Fixtures.CreateTestLibrary("AG")
		require.NoError(t, err)
		strict.AgeVerificationMandatory = utils.ToPtr(true)
		require.NoError(t, env.DB.DB.Save(strict).Error)

		req := signupRequest(strict, "minor@example.com")
		req.Over13 = utils.ToPtr(false)
		_, err = flow.Signup(ctx, req, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrAgeConsentRequired)
	})
}

func TestSignupStateEligibility(t *testing.T) {
	env := newFlowEnv(t)
	flow := newSignupFlow(env)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("ST")
	require.NoError(t, err)

	_, texas, _, err := env.Fixtures.CreateStateHierarchy("TX", "Texas", "Austin")
	require.NoError(t, err)
	require.NoError(t, env.Fixtures.LinkLibraryToPlace(library, texas))

	nevada := &models.Place{
		Name:         "Nevada",
		Type:         models.PlaceTypeState,
		Abbreviation: utils.ToPtr("NV"),
	}
	require.NoError(t, env.DB.DB.Create(nevada).Error)

	t.Run("ServedStateAccepted", func(t *testing.T) {
		req := signupRequest(library, "texan@example.com")
		req.USState = utils.ToPtr("TX")
		_, err := flow.Signup(ctx, req, nil)
		require.NoError(t, err)
	})

	t.Run("OtherStateRejected", func(t *testing.T) {
		req := signupRequest(library, "nevadan@example.com")
		req.USState = utils.ToPtr("NV")
		_, err := flow.Signup(ctx, req, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrPlaceNotEligible)
	})

	t.Run("LibraryWithoutPlacesServesEveryone", func(t *testing.T) {
		open, err := env.Fixtures.CreateTestLibrary("OP")
		require.NoError(t, err)

		req := signupRequest(open, "anywhere@example.com")
		req.USState = utils.ToPtr("NV")
		_, err = flow.Signup(ctx, req, nil)
		require.NoError(t, err)
	})
}

func TestVerifyEmail(t *testing.T) {
	env := newFlowEnv(t)
	flow := newSignupFlow(env)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("VE")
	require.NoError(t, err)

	resp, err := flow.Signup(ctx, signupRequest(library, "verify@example.com"), nil)
	require.NoError(t, err)

	token, err := env.TokenService.GenerateVerificationToken(resp.PatronID, "verify@example.com")
	require.NoError(t, err)

	t.Run("ValidToken", func(t *testing.T) {
		out, err := flow.VerifyEmail(ctx, &dto.EmailVerificationRequest{Token: token}, nil)
		require.NoError(t, err)
		assert.True(t, out.Verified)

		patron, err := env.PatronRepo.ByID(ctx, resp.PatronID)
		require.NoError(t, err)
		assert.True(t, utils.IsTrue(patron.EmailVerified))
	})

	t.Run("SecondVerificationIsIdempotent", func(t *testing.T) {
		out, err := flow.VerifyEmail(ctx, &dto.EmailVerificationRequest{Token: token}, nil)
		require.NoError(t, err)
		assert.True(t, out.Verified)
		assert.Contains(t, out.Message, "already")
	})

	t.Run("GarbageTokenRejected", func(t *testing.T) {
		_, err := flow.VerifyEmail(ctx, &dto.EmailVerificationRequest{Token: "not-a-token"}, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsInvalidToken(err))
	})

	t.Run("AccessTokenRejected", func(t *testing.T) {
		wrongKind, err := env.TokenService.GenerateAccessToken(resp.PatronID)
		require.NoError(t, err)
		_, err = flow.VerifyEmail(ctx, &dto.EmailVerificationRequest{Token: wrongKind}, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsInvalidToken(err))
	})
}
