package businessflow_test

import (
	"context"
	"strings"
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

func newLibraryFlow(env *flowEnv) businessflow.LibraryFlow {
	return businessflow.NewLibraryFlow(
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
}

func createLibraryRequest(identifier, prefix string) *dto.CreateLibraryRequest {
	return &dto.CreateLibraryRequest{
		Name:          "Test Library " + identifier,
		Identifier:    identifier,
		Prefix:        prefix,
		NumberingMode: models.NumberingModeRandom,
	}
}

func TestCreateLibrary(t *testing.T) {
	env := newFlowEnv(t)
	flow := newLibraryFlow(env)
	ctx := context.Background()

	t.Run("RandomMode", func(t *testing.T) {
		resp, err := flow.CreateLibrary(ctx, createLibraryRequest("riverdale", "RD"), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "riverdale", resp.Library.Identifier)
		assert.Equal(t, models.NumberingModeRandom, resp.Library.NumberingMode)
		assert.NotEmpty(t, resp.Library.UUID)
	})

	t.Run("SequentialMode", func(t *testing.T) {
		req := createLibraryRequest("hillvalley", "HV")
		req.NumberingMode = models.NumberingModeSequence
		req.SequenceStartNumber = 1000
		req.SequenceEndNumber = utils.ToPtr(int64(9999))
		resp, err := flow.CreateLibrary(ctx, req, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), resp.Library.SequenceStartNumber)
	})

	t.Run("IdentifierTaken", func(t *testing.T) {
		_, err := flow.CreateLibrary(ctx, createLibraryRequest("riverdale", "RX"), nil, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsLibraryIdentifierTaken(err))
	})

	t.Run("PrefixRequired", func(t *testing.T) {
		_, err := flow.CreateLibrary(ctx, createLibraryRequest("noprefix", ""), nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrPrefixRequired)
	})

	t.Run("RandomPrefixTooLong", func(t *testing.T) {
		// Random numbering needs room for at least four drawn characters.
		_, err := flow.CreateLibrary(ctx, createLibraryRequest("longrand", strings.Repeat("A", 11)), nil, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsPrefixTooLong(err))
	})

	t.Run("MaxLengthPrefixAccepted", func(t *testing.T) {
		req := createLibraryRequest("longseq", strings.Repeat("B", 10))
		req.NumberingMode = models.NumberingModeSequence
		_, err := flow.CreateLibrary(ctx, req, nil, nil)
		require.NoError(t, err)
	})

	t.Run("InvalidNumberingMode", func(t *testing.T) {
		req := createLibraryRequest("badmode", "BM")
		req.NumberingMode = "fibonacci"
		_, err := flow.CreateLibrary(ctx, req, nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrInvalidNumberingMode)
	})

	t.Run("InvalidSequenceBounds", func(t *testing.T) {
		req := createLibraryRequest("badbounds", "BB")
		req.NumberingMode = models.NumberingModeSequence
		req.SequenceStartNumber = 500
		req.SequenceEndNumber = utils.ToPtr(int64(500))
		_, err := flow.CreateLibrary(ctx, req, nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrInvalidSequenceBounds)
	})

	t.Run("DescendingSkipsBoundsCheck", func(t *testing.T) {
		req := createLibraryRequest("downlib", "DL")
		req.NumberingMode = models.NumberingModeSequence
		req.SequenceStartNumber = 9999
		req.SequenceDown = utils.ToPtr(true)
		_, err := flow.CreateLibrary(ctx, req, nil, nil)
		require.NoError(t, err)
	})
}

func TestLibraryServedStates(t *testing.T) {
	env := newFlowEnv(t)
	flow := newLibraryFlow(env)
	ctx := context.Background()

	_, _, _, err := env.Fixtures.CreateStateHierarchy("CA", "California", "Sacramento")
	require.NoError(t, err)
	oregon := &models.Place{Name: "Oregon", Type: models.PlaceTypeState, Abbreviation: utils.ToPtr("OR")}
	require.NoError(t, env.DB.DB.Create(oregon).Error)

	req := createLibraryRequest("westcoast", "WC")
	req.States = []string{"CA"}
	resp, err := flow.CreateLibrary(ctx, req, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"CA"}, resp.Library.States)

	t.Run("UnknownStateRejected", func(t *testing.T) {
		req := createLibraryRequest("nowhere", "NW")
		req.States = []string{"XX"}
		_, err := flow.CreateLibrary(ctx, req, nil, nil)
		require.Error(t, err)
	})

	t.Run("UpdateReplacesStates", func(t *testing.T) {
		resp, err := flow.UpdateLibrary(ctx, "westcoast", &dto.UpdateLibraryRequest{
			States: []string{"OR"},
		}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"OR"}, resp.Library.States)
	})
}

func TestUpdateLibrary(t *testing.T) {
	env := newFlowEnv(t)
	flow := newLibraryFlow(env)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		_, err := flow.UpdateLibrary(ctx, "missing", &dto.UpdateLibraryRequest{}, nil, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsLibraryNotFound(err))
	})

	t.Run("PartialUpdate", func(t *testing.T) {
		_, err := flow.CreateLibrary(ctx, createLibraryRequest("renamed", "RN"), nil, nil)
		require.NoError(t, err)

		resp, err := flow.UpdateLibrary(ctx, "renamed", &dto.UpdateLibraryRequest{
			Name:    utils.ToPtr("New Name"),
			PinText: utils.ToPtr("Your password"),
		}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "New Name", resp.Library.Name)
		assert.Equal(t, "Your password", resp.Library.PinText)
		assert.Equal(t, "RN", resp.Library.Prefix)
	})

	t.Run("StartChangeResetsSequence", func(t *testing.T) {
		library, err := env.Fixtures.CreateSequentialLibrary("SQ", 100, nil, false)
		require.NoError(t, err)

		// Draw a few numbers so the counter has advanced past the start.
		for i := 0; i < 3; i++ {
			card := &models.LibraryCard{LibraryID: &library.ID, Library: library}
			require.NoError(t, env.Generator.Assign(ctx, card))
		}

		_, err = flow.UpdateLibrary(ctx, library.Identifier, &dto.UpdateLibraryRequest{
			SequenceStartNumber: utils.ToPtr(int64(500)),
		}, nil, nil)
		require.NoError(t, err)

		updated, err := env.LibraryRepo.ByIdentifier(ctx, library.Identifier)
		require.NoError(t, err)
		card := &models.LibraryCard{LibraryID: &updated.ID, Library: updated}
		require.NoError(t, env.Generator.Assign(ctx, card))
		// The counter fast-forwarded to 500; the next draw is 501.
		assert.Equal(t, "SQ000000000501", card.Number)
	})
}

func TestResolveLibrary(t *testing.T) {
	env := newFlowEnv(t)
	flow := newLibraryFlow(env)
	ctx := context.Background()

	library, err := env.Fixtures.CreateTestLibrary("RL")
	require.NoError(t, err)

	resolved, err := flow.ResolveLibrary(ctx, library.Identifier)
	require.NoError(t, err)
	assert.Equal(t, library.ID, resolved.ID)

	_, err = flow.ResolveLibrary(ctx, "no-such-library")
	require.Error(t, err)
	assert.True(t, businessflow.IsLibraryNotFound(err))
}

func TestGetAndListLibraries(t *testing.T) {
	env := newFlowEnv(t)
	flow := newLibraryFlow(env)
	ctx := context.Background()

	for _, id := range []string{"alpha", "beta", "gamma"} {
		_, err := flow.CreateLibrary(ctx, createLibraryRequest(id, strings.ToUpper(id[:2])), nil, nil)
		require.NoError(t, err)
	}

	resp, err := flow.GetLibrary(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", resp.Library.Identifier)

	list, err := flow.ListLibraries(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, list.Libraries, 2)
	assert.Equal(t, int64(3), list.Total)

	rest, err := flow.ListLibraries(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest.Libraries, 1)
}
