package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      10 * time.Millisecond,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryAndSuccess(t *testing.T) {
	var seen []int
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		if attempt < 2 {
			return errors.New("temporary error")
		}
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []int{1}, retried)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	expected := errors.New("persistent error")
	attempts := 0

	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return expected
	}, fastConfig(3))

	assert.ErrorIs(t, err, expected)
	assert.Equal(t, 3, attempts)
}

// TestDo_NotRetryable 不可重试的错误立即返回
func TestDo_NotRetryable(t *testing.T) {
	permanent := errors.New("bad payload")
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return permanent
	}, cfg)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Second, BackoffFactor: 1}

	attempts := 0
	err := Do(ctx, func(ctx context.Context, attempt int) error {
		attempts++
		cancel()
		return errors.New("fail")
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestConfig_Delay(t *testing.T) {
	cfg := Config{InitialDelay: 10 * time.Millisecond, BackoffFactor: 2, MaxDelay: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 20*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 40*time.Millisecond, cfg.Delay(3))
	assert.Equal(t, 50*time.Millisecond, cfg.Delay(4))
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return errors.New("x")
	}, Config{})
	assert.Equal(t, 1, attempts)
}
