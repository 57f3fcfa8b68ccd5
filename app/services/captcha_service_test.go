package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/app/services"
)

func TestMemoryChallengeStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PutAndTake", func(t *testing.T) {
		store := services.NewMemoryChallengeStore(time.Minute)
		require.NoError(t, store.Put(ctx, "c1", 137))

		angle, ok := store.Take(ctx, "c1")
		assert.True(t, ok)
		assert.Equal(t, 137, angle)
	})

	t.Run("TakeConsumesChallenge", func(t *testing.T) {
		store := services.NewMemoryChallengeStore(time.Minute)
		require.NoError(t, store.Put(ctx, "c1", 90))

		_, ok := store.Take(ctx, "c1")
		require.True(t, ok)
		_, ok = store.Take(ctx, "c1")
		assert.False(t, ok)
	})

	t.Run("UnknownID", func(t *testing.T) {
		store := services.NewMemoryChallengeStore(time.Minute)
		_, ok := store.Take(ctx, "never-put")
		assert.False(t, ok)
	})

	t.Run("ExpiredChallenge", func(t *testing.T) {
		store := services.NewMemoryChallengeStore(time.Nanosecond)
		require.NoError(t, store.Put(ctx, "c1", 45))
		time.Sleep(5 * time.Millisecond)

		_, ok := store.Take(ctx, "c1")
		assert.False(t, ok)
	})
}

func TestCaptchaServiceGenerateAndVerify(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryChallengeStore(time.Minute)
	svc, err := services.NewCaptchaService(store, 5, 220)
	require.NoError(t, err)

	challenge, err := svc.Generate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, challenge.ID)
	assert.NotEmpty(t, challenge.MasterImageBase64)
	assert.NotEmpty(t, challenge.ThumbImageBase64)

	t.Run("WrongAngleFails", func(t *testing.T) {
		// Consumes the challenge whatever the outcome.
		svc.Verify(ctx, challenge.ID, 9999)
		assert.False(t, svc.Verify(ctx, challenge.ID, 9999))
	})

	t.Run("UnknownChallengeFails", func(t *testing.T) {
		assert.False(t, svc.Verify(ctx, "missing-id", 90))
	})
}
