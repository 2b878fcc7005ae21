package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"testing"
	"time"

	"github.com/mediacache/mediacache/pkg/errors"
)

func fastConfig(attempts int) Config {
	config := DefaultConfig()
	config.MaxAttempts = attempts
	config.InitialDelay = time.Millisecond
	config.MaxDelay = 5 * time.Millisecond
	config.Jitter = false
	return config
}

func TestRetryer_Success(t *testing.T) {
	retryer := New(fastConfig(3))

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_RetryableError(t *testing.T) {
	retryer := New(fastConfig(3))

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.NewError(errors.ErrCodeConnectionTimeout, "connection timeout")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_NonRetryableError(t *testing.T) {
	retryer := New(fastConfig(3))

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return errors.NewError(errors.ErrCodeObjectNotFound, "missing")
	})

	if !errors.HasCode(err, errors.ErrCodeObjectNotFound) {
		t.Errorf("Expected OBJECT_NOT_FOUND, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_PlainErrorNotRetried(t *testing.T) {
	retryer := New(fastConfig(3))

	attempts := 0
	plain := fmt.Errorf("plain failure")
	err := retryer.Do(func() error {
		attempts++
		return plain
	})

	if !stderr.Is(err, plain) {
		t.Errorf("Expected the plain error back, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_Exhausted(t *testing.T) {
	retryer := New(fastConfig(2))

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return errors.NewError(errors.ErrCodeStorageRead, "read failed")
	})

	if !errors.HasCode(err, errors.ErrCodeRetryExhausted) {
		t.Errorf("Expected RETRY_EXHAUSTED, got %v", err)
	}
	if !errors.HasCode(err, errors.ErrCodeStorageRead) {
		t.Errorf("Expected cause to be kept, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetryer_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(fastConfig(3)).DoWithContext(ctx, func(context.Context) error {
		t.Error("fn must not run on a canceled context")
		return nil
	})

	if !errors.HasCode(err, errors.ErrCodeOperationCanceled) {
		t.Errorf("Expected OPERATION_CANCELED, got %v", err)
	}
	if !stderr.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	var calls []int
	retryer := New(fastConfig(3)).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		calls = append(calls, attempt)
	})

	_ = retryer.Do(func() error {
		return errors.NewError(errors.ErrCodeNetworkError, "net")
	})

	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("Expected OnRetry for attempts [1 2], got %v", calls)
	}
}

func TestCalculateDelay(t *testing.T) {
	config := fastConfig(5)
	config.InitialDelay = 10 * time.Millisecond
	config.MaxDelay = 35 * time.Millisecond
	retryer := New(config)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 35 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := retryer.calculateDelay(tt.attempt); got != tt.want {
			t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	retryer := New(Config{})
	if retryer.config.MaxAttempts != 4 || retryer.config.Multiplier != 2.0 {
		t.Errorf("zero config not defaulted: %+v", retryer.config)
	}
}
