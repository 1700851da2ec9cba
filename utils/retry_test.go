package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryFixed_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryFixed(context.Background(), 6, time.Millisecond, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("empty")
		}
		return nil
	}, NewNopLogger())

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryFixed_Exhausts(t *testing.T) {
	calls := 0
	err := RetryFixed(context.Background(), 6, time.Millisecond, func(int) error {
		calls++
		return errors.New("empty")
	}, NewNopLogger())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 7, calls)
}

func TestRetryFixed_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := RetryFixed(ctx, 100, 10*time.Millisecond, func(int) error {
		calls++
		return errors.New("empty")
	}, NewNopLogger())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, calls, 100)
}

func TestSeenSet(t *testing.T) {
	s := NewSeenSet()
	assert.True(t, s.Add("250"))
	assert.False(t, s.Add("250"))
	assert.True(t, s.Has("250"))
	assert.Equal(t, 1, s.Count())
}

func TestTextHelpers(t *testing.T) {
	assert.Equal(t, "Deluxe King Room", CollapseSpace("  Deluxe \n King\tRoom "))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab...", Ellipsize("abcdefgh", 5))
	assert.True(t, ContainsAnyFold("Get CASHBACK now", "cashback"))
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
}
