package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/repository"
	testingutil "github.com/virtuallibrarycard/vlc/testing"
	"github.com/virtuallibrarycard/vlc/utils"
)

func TestSequenceNextValue(t *testing.T) {
	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(testDB.Cleanup)

	repo := repository.NewSequenceRepository(testDB.DB)
	ctx := context.Background()

	t.Run("FirstDrawYieldsInitialValue", func(t *testing.T) {
		value, err := repo.NextValue(ctx, "seq_first", 100, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(100), value)
	})

	t.Run("LaterDrawsIncrement", func(t *testing.T) {
		for want := int64(101); want <= 103; want++ {
			value, err := repo.NextValue(ctx, "seq_first", 100, nil)
			require.NoError(t, err)
			assert.Equal(t, want, value)
		}
	})

	t.Run("InitialValueOnlyMattersOnFirstDraw", func(t *testing.T) {
		value, err := repo.NextValue(ctx, "seq_first", 9000, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(104), value)
	})

	t.Run("ResetValueWrapsToInitial", func(t *testing.T) {
		limit := utils.ToPtr(int64(3))
		values := make([]int64, 0, 5)
		for i := 0; i < 5; i++ {
			value, err := repo.NextValue(ctx, "seq_wrap", 1, limit)
			require.NoError(t, err)
			values = append(values, value)
		}
		assert.Equal(t, []int64{1, 2, 1, 2, 1}, values)
	})
}

func TestSequenceLastValue(t *testing.T) {
	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(testDB.Cleanup)

	repo := repository.NewSequenceRepository(testDB.DB)
	ctx := context.Background()

	t.Run("UnknownCounter", func(t *testing.T) {
		last, err := repo.LastValue(ctx, "never_drawn")
		require.NoError(t, err)
		assert.Nil(t, last)
	})

	t.Run("TracksDraws", func(t *testing.T) {
		_, err := repo.NextValue(ctx, "seq_tracked", 7, nil)
		require.NoError(t, err)
		_, err = repo.NextValue(ctx, "seq_tracked", 7, nil)
		require.NoError(t, err)

		last, err := repo.LastValue(ctx, "seq_tracked")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, int64(8), *last)
	})
}
