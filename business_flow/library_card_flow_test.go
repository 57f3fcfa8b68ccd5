package businessflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/app/dto"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
	"github.com/virtuallibrarycard/vlc/utils"
)

func TestIssueCard(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("IC")
	require.NoError(t, err)
	patron, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)

	t.Run("IssuesFreshCard", func(t *testing.T) {
		card, reused, err := env.CardFlow.IssueCard(ctx, patron, library, nil)
		require.NoError(t, err)
		assert.False(t, reused)
		assert.Len(t, card.Number, utils.CardNumberTotalLength)
		assert.NotZero(t, card.ID)
	})

	t.Run("ReusesActiveCard", func(t *testing.T) {
		first, _, err := env.CardFlow.IssueCard(ctx, patron, library, nil)
		require.NoError(t, err)

		second, reused, err := env.CardFlow.IssueCard(ctx, patron, library, nil)
		require.NoError(t, err)
		assert.True(t, reused)
		assert.Equal(t, first.Number, second.Number)
	})

	t.Run("ExplicitNumberDuplicateRejected", func(t *testing.T) {
		other, err := env.Fixtures.CreateTestPatron(library)
		require.NoError(t, err)
		_, err = env.Fixtures.CreateTestCard(other, library, "IC000000TAKEN0")
		require.NoError(t, err)

		third, err := env.Fixtures.CreateTestPatron(library)
		require.NoError(t, err)
		number := "IC000000TAKEN0"
		_, _, err = env.CardFlow.IssueCard(ctx, third, library, &number)
		assert.ErrorIs(t, err, businessflow.ErrCardNumberDuplicate)
	})

	t.Run("ExpirationDateFromValidityMonths", func(t *testing.T) {
		library.CardValidityMonths = utils.ToPtr(uint(24))
		require.NoError(t, env.DB.DB.Save(library).Error)

		fresh, err := env.Fixtures.CreateTestPatron(library)
		require.NoError(t, err)

		card, _, err := env.CardFlow.IssueCard(ctx, fresh, library, nil)
		require.NoError(t, err)
		require.NotNil(t, card.ExpirationDate)

		want := utils.AddMonths(utils.UTCNow(), 24)
		assert.WithinDuration(t, want, *card.ExpirationDate, time.Minute)
	})
}

func TestCancelCard(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("CN")
	require.NoError(t, err)
	patron, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)
	admin, err := env.Fixtures.CreateStaffPatron(library)
	require.NoError(t, err)

	card, _, err := env.CardFlow.IssueCard(ctx, patron, library, nil)
	require.NoError(t, err)

	t.Run("CancelsOnce", func(t *testing.T) {
		resp, err := env.CardFlow.CancelCard(ctx, &dto.CancelCardRequest{Number: card.Number}, admin, nil)
		require.NoError(t, err)
		require.NotNil(t, resp.Card.CanceledDate)

		stored, err := env.CardRepo.ByNumber(ctx, card.Number)
		require.NoError(t, err)
		assert.True(t, stored.IsCanceled())
		assert.Equal(t, admin.Email, *stored.CanceledByUser)
	})

	t.Run("SecondCancelRejected", func(t *testing.T) {
		_, err := env.CardFlow.CancelCard(ctx, &dto.CancelCardRequest{Number: card.Number}, admin, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrCardAlreadyCanceled)
	})

	t.Run("UnknownNumberRejected", func(t *testing.T) {
		_, err := env.CardFlow.CancelCard(ctx, &dto.CancelCardRequest{Number: "NOPE0000000000"}, admin, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsCardNotFound(err))
	})

	t.Run("CanceledCardIsReplacedNotReused", func(t *testing.T) {
		fresh, reused, err := env.CardFlow.IssueCard(ctx, patron, library, nil)
		require.NoError(t, err)
		assert.False(t, reused)
		assert.NotEqual(t, card.Number, fresh.Number)
	})
}
