package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("first request passes immediately", func(t *testing.T) {
		rl := NewRateLimiter(1.0, 1)

		start := time.Now()
		require.NoError(t, rl.Wait(context.Background()))
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("second request is throttled", func(t *testing.T) {
		rl := NewRateLimiter(10.0, 1)

		require.NoError(t, rl.Wait(context.Background()))
		start := time.Now()
		require.NoError(t, rl.Wait(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("canceled context aborts the wait", func(t *testing.T) {
		rl := NewRateLimiter(0.1, 1)
		require.NoError(t, rl.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := rl.Wait(ctx)
		assert.Error(t, err)
	})
}

func TestRateLimiter_FloodWait(t *testing.T) {
	t.Run("flood pause delays the next request", func(t *testing.T) {
		rl := NewRateLimiter(100.0, 1)
		rl.SetFloodWait(1)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := rl.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("expired flood pause is ignored", func(t *testing.T) {
		rl := NewRateLimiter(100.0, 1)
		rl.SetFloodWait(0)

		require.NoError(t, rl.Wait(context.Background()))
	})
}
