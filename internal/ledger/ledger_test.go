package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixcyberchallenge/submission-relay/internal/ledger"
)

// Behaviour every backend must share
func exerciseLedger(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()

	t.Run("UnknownTeam", func(t *testing.T) {
		submitted, err := l.Submitted(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, submitted)
	})

	t.Run("AcquireOnce", func(t *testing.T) {
		acquired, err := l.Acquire(ctx, "teamA")
		require.NoError(t, err)
		assert.True(t, acquired)

		submitted, err := l.Submitted(ctx, "teamA")
		require.NoError(t, err)
		assert.True(t, submitted)

		acquired, err = l.Acquire(ctx, "teamA")
		require.NoError(t, err)
		assert.False(t, acquired, "second acquire must not succeed")
	})

	t.Run("Reset", func(t *testing.T) {
		_, err := l.Acquire(ctx, "teamB")
		require.NoError(t, err)

		require.NoError(t, l.Reset(ctx, "teamB"))

		submitted, err := l.Submitted(ctx, "teamB")
		require.NoError(t, err)
		assert.False(t, submitted)

		acquired, err := l.Acquire(ctx, "teamB")
		require.NoError(t, err)
		assert.True(t, acquired, "acquire works again after reset")
	})

	t.Run("ResetUnknown", func(t *testing.T) {
		require.NoError(t, l.Reset(ctx, "teamC"))

		submitted, err := l.Submitted(ctx, "teamC")
		require.NoError(t, err)
		assert.False(t, submitted)
	})

	t.Run("Snapshot", func(t *testing.T) {
		snapshot, err := l.Snapshot(ctx)
		require.NoError(t, err)

		assert.Equal(t, map[string]bool{
			"teamA": true,
			"teamB": true,
			"teamC": false,
		}, snapshot)
	})

	t.Run("ConcurrentAcquire", func(t *testing.T) {
		var wg sync.WaitGroup
		var winners atomic.Int32
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				acquired, err := l.Acquire(ctx, "teamRace")
				assert.NoError(t, err)
				if acquired {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load())
	})
}
