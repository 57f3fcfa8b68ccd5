package businessflow_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/app/services"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

func TestAssignRandom(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("AA")
	require.NoError(t, err)

	t.Run("NumberHasFixedLengthAndPrefix", func(t *testing.T) {
		card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
		require.NoError(t, env.Generator.Assign(ctx, card))

		assert.Len(t, card.Number, utils.CardNumberTotalLength)
		assert.True(t, strings.HasPrefix(card.Number, "AA"))
		for _, ch := range card.Number[len("AA"):] {
			assert.Contains(t, businessflow.AllowedCharacters, string(ch))
		}
	})

	t.Run("NumbersAreUnique", func(t *testing.T) {
		patron, err := env.Fixtures.CreateTestPatron(library)
		require.NoError(t, err)

		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			card := &models.LibraryCard{LibraryID: &library.ID, PatronID: patron.ID}
			require.NoError(t, env.Generator.Assign(ctx, card))
			require.False(t, seen[card.Number], "duplicate number %s", card.Number)
			seen[card.Number] = true

			// Persist so NumberExists sees it on later draws.
			require.NoError(t, env.DB.DB.Create(card).Error)
		}
	})

	t.Run("DigitsOnlyAlphabet", func(t *testing.T) {
		env.Generator.RandomDigitsOnly = true
		defer func() { env.Generator.RandomDigitsOnly = false }()

		card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
		require.NoError(t, env.Generator.Assign(ctx, card))
		for _, ch := range card.Number[len("AA"):] {
			assert.GreaterOrEqual(t, ch, '0')
			assert.LessOrEqual(t, ch, '9')
		}
	})

	t.Run("NoLibraryLeavesNumberEmpty", func(t *testing.T) {
		card := &models.LibraryCard{PatronID: 1}
		require.NoError(t, env.Generator.Assign(ctx, card))
		assert.Empty(t, card.Number)
	})

	t.Run("PrefixTooLong", func(t *testing.T) {
		// 11-char prefix leaves 3 serialized characters, below the random
		// minimum of 4.
		card := &models.LibraryCard{
			Library:  &models.Library{Prefix: strings.Repeat("Z", 11), NumberingMode: models.NumberingModeRandom},
			PatronID: 1,
		}
		err := env.Generator.Assign(ctx, card)
		assert.ErrorIs(t, err, businessflow.ErrPrefixTooLong)
		assert.Empty(t, card.Number)
	})
}

func TestAssignRandomCensorRejection(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("CC")
	require.NoError(t, err)

	// A censor that forbids every single digit makes any digits-only draw a
	// rejection, so the generator must run out of retries.
	censored := businessflow.NewCardNumberGenerator(
		env.LibraryRepo,
		env.CardRepo,
		env.SequenceRepo,
		env.PatronRepo,
		services.NewCensor(zerolog.Nop(), "0", "1", "2", "3", "4", "5", "6", "7", "8", "9"),
		env.Notifier,
		env.DB.DB,
		zerolog.Nop(),
	)
	censored.RandomDigitsOnly = true
	censored.Retries = 3

	card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
	err = censored.Assign(ctx, card)
	assert.ErrorIs(t, err, businessflow.ErrCardNumberExhausted)
	assert.Empty(t, card.Number)
}

// collidingCardRepo reports the first candidate it is asked about as already
// taken, then delegates to the real repository.
type collidingCardRepo struct {
	repository.LibraryCardRepository
	mu    sync.Mutex
	calls int
	first string
}

func (r *collidingCardRepo) NumberExists(ctx context.Context, libraryID uint, number string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls == 1 {
		r.first = number
		return true, nil
	}
	return r.LibraryCardRepository.NumberExists(ctx, libraryID, number)
}

func TestAssignRandomSkipsTakenNumber(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("CL")
	require.NoError(t, err)

	cardRepo := &collidingCardRepo{LibraryCardRepository: env.CardRepo}
	generator := businessflow.NewCardNumberGenerator(
		env.LibraryRepo,
		cardRepo,
		env.SequenceRepo,
		env.PatronRepo,
		services.NewCensor(zerolog.Nop()),
		env.Notifier,
		env.DB.DB,
		zerolog.Nop(),
	)

	card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
	require.NoError(t, generator.Assign(ctx, card))

	// The first candidate was reported taken, so the assigned number must
	// come from a later draw.
	require.NotEmpty(t, cardRepo.first)
	assert.GreaterOrEqual(t, cardRepo.calls, 2)
	assert.NotEqual(t, cardRepo.first, card.Number)
	assert.True(t, strings.HasPrefix(card.Number, "CL"))
	assert.Len(t, card.Number, utils.CardNumberTotalLength)
}

func TestAssignSequential(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	t.Run("AscendingStartsAtStartNumber", func(t *testing.T) {
		library, err := env.Fixtures.CreateSequentialLibrary("ASC", 100, nil, false)
		require.NoError(t, err)

		want := []string{
			"ASC00000000100",
			"ASC00000000101",
			"ASC00000000102",
		}
		for _, expected := range want {
			card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
			require.NoError(t, env.Generator.Assign(ctx, card))
			assert.Equal(t, expected, card.Number)
			assert.Len(t, card.Number, utils.CardNumberTotalLength)
		}
	})

	t.Run("DescendingCountsDownFromStart", func(t *testing.T) {
		library, err := env.Fixtures.CreateSequentialLibrary("DWN", 9999, nil, true)
		require.NoError(t, err)

		// The first draw yields the start number itself, mirroring the
		// ascending case; the countdown begins on the second draw.
		want := []string{
			"DWN00000009999",
			"DWN00000009998",
			"DWN00000009997",
		}
		for _, expected := range want {
			card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
			require.NoError(t, env.Generator.Assign(ctx, card))
			assert.Equal(t, expected, card.Number)
		}
	})

	t.Run("BoundedDescendingCountsDownFromStart", func(t *testing.T) {
		end := int64(9000)
		library, err := env.Fixtures.CreateSequentialLibrary("BND", 9999, &end, true)
		require.NoError(t, err)

		// The end bound shifts the counter arithmetic but the first draw
		// still opens at the start number, not one below it.
		want := []string{
			"BND00000009999",
			"BND00000009998",
		}
		for _, expected := range want {
			card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
			require.NoError(t, env.Generator.Assign(ctx, card))
			assert.Equal(t, expected, card.Number)
		}
	})

	t.Run("PrefixTooLong", func(t *testing.T) {
		card := &models.LibraryCard{
			Library: &models.Library{
				Prefix:        strings.Repeat("X", utils.CardNumberTotalLength),
				NumberingMode: models.NumberingModeSequence,
			},
			PatronID: 1,
		}
		err := env.Generator.Assign(ctx, card)
		assert.ErrorIs(t, err, businessflow.ErrPrefixTooLong)
		assert.Empty(t, card.Number)
	})
}

func TestAssignSequentialCollisionBurnsValue(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	library, err := env.Fixtures.CreateSequentialLibrary("COL", 500, nil, false)
	require.NoError(t, err)
	patron, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)

	// Occupy the first value the sequence will produce.
	_, err = env.Fixtures.CreateTestCard(patron, library, "COL00000000500")
	require.NoError(t, err)

	card := &models.LibraryCard{LibraryID: &library.ID, PatronID: patron.ID}
	require.NoError(t, env.Generator.Assign(ctx, card))
	assert.Equal(t, "COL00000000501", card.Number)

	// The collided value stays consumed.
	last, err := env.SequenceRepo.LastValue(ctx, models.CardNumberSequenceName(library))
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(501), *last)
}

func TestAssignSequentialExhaustion(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	library, err := env.Fixtures.CreateSequentialLibrary("EXH", 1, nil, false)
	require.NoError(t, err)
	patron, err := env.Fixtures.CreateTestPatron(library)
	require.NoError(t, err)

	env.Generator.Retries = 5

	// Occupy every value the generator may draw within its retry budget.
	for v := int64(1); v <= 5; v++ {
		number := "EXH" + strings.Repeat("0", 10) + string(rune('0'+v))
		_, err := env.Fixtures.CreateTestCard(patron, library, number)
		require.NoError(t, err)
	}

	card := &models.LibraryCard{LibraryID: &library.ID, PatronID: patron.ID}
	err = env.Generator.Assign(ctx, card)
	assert.ErrorIs(t, err, businessflow.ErrCardNumberExhausted)
	assert.Empty(t, card.Number)
}

func TestSequenceAlertNotifiesAdmins(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	library, err := env.Fixtures.CreateSequentialLibrary("ALR", 1, nil, false)
	require.NoError(t, err)
	admin, err := env.Fixtures.CreateStaffPatron(library)
	require.NoError(t, err)

	env.Generator.AlertThreshold = 3

	// Values 1..3: the third draw sits 2 away from start; the fourth crosses
	// the threshold of 3.
	for i := 0; i < 4; i++ {
		card := &models.LibraryCard{LibraryID: &library.ID, PatronID: admin.ID}
		require.NoError(t, env.Generator.Assign(ctx, card))
		require.NoError(t, env.DB.DB.Create(card).Error)
	}

	sent := env.Email.SentTo(admin.Email)
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[0].Subject, "sequence alert")
}

func TestResetSequence(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	t.Run("UntouchedSequenceIsNoOp", func(t *testing.T) {
		library, err := env.Fixtures.CreateSequentialLibrary("RS1", 50, nil, false)
		require.NoError(t, err)

		require.NoError(t, env.Generator.ResetSequence(ctx, library))

		last, err := env.SequenceRepo.LastValue(ctx, models.CardNumberSequenceName(library))
		require.NoError(t, err)
		assert.Nil(t, last)
	})

	t.Run("AscendingStartMovedForwardFastForwards", func(t *testing.T) {
		library, err := env.Fixtures.CreateSequentialLibrary("RS2", 1, nil, false)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
			require.NoError(t, env.Generator.Assign(ctx, card))
		}

		library.SequenceStartNumber = 10
		require.NoError(t, env.Generator.ResetSequence(ctx, library))

		last, err := env.SequenceRepo.LastValue(ctx, models.CardNumberSequenceName(library))
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, int64(10), *last)

		card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
		require.NoError(t, env.Generator.Assign(ctx, card))
		assert.Equal(t, "RS200000000011", card.Number)
	})

	t.Run("StartMovedBackwardReseeds", func(t *testing.T) {
		library, err := env.Fixtures.CreateSequentialLibrary("RS3", 1, nil, false)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			card := &models.LibraryCard{LibraryID: &library.ID, PatronID: 1}
			require.NoError(t, env.Generator.Assign(ctx, card))
		}

		library.SequenceStartNumber = 3
		require.NoError(t, env.Generator.ResetSequence(ctx, library))

		last, err := env.SequenceRepo.LastValue(ctx, models.CardNumberSequenceName(library))
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, int64(3), *last)
	})
}
