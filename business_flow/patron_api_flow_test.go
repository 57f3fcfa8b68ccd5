package businessflow_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/app/dto"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
	"github.com/virtuallibrarycard/vlc/utils"
)

func TestPinTest(t *testing.T) {
	env := newFlowEnv(t)
	flow := businessflow.NewPatronAPIFlow(env.CardRepo, env.PatronRepo, env.AuditRepo, zerolog.Nop())
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("PA")
	require.NoError(t, err)
	patron, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)
	card, err := env.Fixtures.CreateTestCard(patron, library, "PA000000000001")
	require.NoError(t, err)

	t.Run("MissingParams", func(t *testing.T) {
		for _, pair := range [][2]string{{"", ""}, {card.Number, ""}, {"", "TestPass123!"}} {
			result, err := flow.PinTest(ctx, pair[0], pair[1], nil)
			require.NoError(t, err)
			assert.Equal(t, 1, result.RetCod)
			require.NotNil(t, result.ErrNum)
			assert.Equal(t, dto.PatronAPIErrMissingParams, *result.ErrNum)
			assert.Equal(t, "Missing required parameter(s): 'number' and 'pin'", result.ErrMsg)
		}
	})

	t.Run("UnknownNumber", func(t *testing.T) {
		result, err := flow.PinTest(ctx, "PA999999999999", "TestPass123!", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.RetCod)
		require.NotNil(t, result.ErrNum)
		assert.Equal(t, dto.PatronAPIErrRecordNotFound, *result.ErrNum)
		assert.Equal(t, "Requested record not found", result.ErrMsg)
	})

	t.Run("WrongPin", func(t *testing.T) {
		result, err := flow.PinTest(ctx, card.Number, "wrong-password", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.RetCod)
		require.NotNil(t, result.ErrNum)
		assert.Equal(t, dto.PatronAPIErrInvalidPin, *result.ErrNum)
		assert.Equal(t, "Invalid patron PIN", result.ErrMsg)
	})

	t.Run("UnverifiedEmail", func(t *testing.T) {
		patron.EmailVerified = utils.ToPtr(false)
		require.NoError(t, env.DB.DB.Save(patron).Error)

		result, err := flow.PinTest(ctx, card.Number, "TestPass123!", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.RetCod)
		require.NotNil(t, result.ErrNum)
		assert.Equal(t, dto.PatronAPIErrUnverifiedEmail, *result.ErrNum)
		assert.Equal(t, "Patron has an unverified email address", result.ErrMsg)
	})

	t.Run("ValidPair", func(t *testing.T) {
		patron.EmailVerified = utils.ToPtr(true)
		require.NoError(t, env.DB.DB.Save(patron).Error)

		result, err := flow.PinTest(ctx, card.Number, "TestPass123!", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.RetCod)
		assert.Nil(t, result.ErrNum)
		assert.Empty(t, result.ErrMsg)
	})
}

func TestDump(t *testing.T) {
	env := newFlowEnv(t)
	flow := businessflow.NewPatronAPIFlow(env.CardRepo, env.PatronRepo, env.AuditRepo, zerolog.Nop())
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("DU")
	require.NoError(t, err)
	patron, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)
	card, err := env.Fixtures.CreateTestCard(patron, library, "DU000000000001")
	require.NoError(t, err)

	t.Run("Found", func(t *testing.T) {
		result, err := flow.Dump(ctx, card.Number)
		require.NoError(t, err)
		require.Len(t, result.LibraryCards, 1)
		assert.Equal(t, card.Number, result.LibraryCards[0].Number)
		assert.Nil(t, result.ErrNum)
	})

	t.Run("NotFound", func(t *testing.T) {
		result, err := flow.Dump(ctx, "DU999999999999")
		require.NoError(t, err)
		assert.Empty(t, result.LibraryCards)
		require.NotNil(t, result.ErrNum)
		assert.Equal(t, dto.PatronAPIErrRecordNotFound, *result.ErrNum)
		assert.Equal(t, "Requested record not found", result.ErrMsg)
	})
}
