package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herculesaleixo/stackform/internal/remote"
)

func quickPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), quickPolicy(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_PermanentFailsFast(t *testing.T) {
	calls := 0
	boom := remote.Permanent(errors.New("invalid parameter"))
	err := RetryWithBackoff(context.Background(), quickPolicy(), func() error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, boom)
}

func TestRetryWithBackoff_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), quickPolicy(), func() error {
		calls++
		if calls < 3 {
			return remote.Transient(errors.New("throttled"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), quickPolicy(), func() error {
		calls++
		return remote.Transient(errors.New("throttled"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, quickPolicy(), func() error {
		return remote.Transient(errors.New("throttled"))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBackoff_NilPolicyUsesDefault(t *testing.T) {
	err := RetryWithBackoff(context.Background(), nil, func() error { return nil })
	assert.NoError(t, err)
}
