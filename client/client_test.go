package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallWithTimeout(t *testing.T) {
	// 永不返回的调用必须在超时上限处失败，而不是悬挂
	start := time.Now()
	err := callWithTimeout(context.Background(), 50*time.Millisecond, func(ctx context.Context) error {
		select {} // 故意挂死
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, elapsed, time.Second)
}

func TestCallWithTimeoutSuccess(t *testing.T) {
	err := callWithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestRetryAddExhaustion(t *testing.T) {
	attempts := 0
	_, err := retryAdd(3, func() (string, error) {
		attempts++
		return "", fmt.Errorf("transient")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAddTorrent))
	assert.Equal(t, 3, attempts)
}

func TestRetryAddCorruptStopsImmediately(t *testing.T) {
	attempts := 0
	_, err := retryAdd(5, func() (string, error) {
		attempts++
		return "", ErrCorruptTorrent
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptTorrent))
	assert.Equal(t, 1, attempts, "corrupt torrent must not be retried")
}

func TestRetryAddSucceedsAfterFailure(t *testing.T) {
	attempts := 0
	id, err := retryAdd(3, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", fmt.Errorf("transient")
		}
		return "abc", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, 2, attempts)
}

func TestIsActiveState(t *testing.T) {
	active := []string{"downloading", "metaDL", "stalledDL", "checkingUP", "checkingDL", "checkingResumeData"}
	for _, s := range active {
		assert.True(t, IsActiveState(s), s)
	}

	inactive := []string{"uploading", "stalledUP", "pausedUP", "error", ""}
	for _, s := range inactive {
		assert.False(t, IsActiveState(s), s)
	}
}
