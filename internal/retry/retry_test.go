package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Growth:      GrowthLinear,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor(fastPolicy(3))

	calls := 0
	err := e.Do(context.Background(), "generate", nil, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	e := NewExecutor(fastPolicy(5))
	transient := errors.New("connection reset")

	calls := 0
	err := e.Do(context.Background(), "generate", nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudgetOnRetryable(t *testing.T) {
	e := NewExecutor(fastPolicy(4))
	transient := errors.New("connection reset")

	calls := 0
	err := e.Do(context.Background(), "generate", nil, func(ctx context.Context) error {
		calls++
		return transient
	})

	require.Error(t, err)
	// The budget bounds total attempts, including the first.
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 4, Attempts(err))
}

func TestDo_FatalErrorStopsImmediately(t *testing.T) {
	e := NewExecutor(fastPolicy(5))
	fatal := errors.New("safety rejection")

	calls := 0
	err := e.Do(context.Background(), "generate",
		func(err error) bool { return !errors.Is(err, fatal) },
		func(ctx context.Context) error {
			calls++
			return fatal
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, Attempts(err))
}

func TestDo_ContextCancellationDuringWait(t *testing.T) {
	e := NewExecutor(Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Minute,
		Growth:      GrowthLinear,
	})

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- e.Do(ctx, "generate", nil, func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDo_CancelledContextBeforeFirstAttempt(t *testing.T) {
	e := NewExecutor(fastPolicy(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.Do(ctx, "generate", nil, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestNewExecutor_DefaultsInvalidPolicy(t *testing.T) {
	e := NewExecutor(Policy{})
	assert.Equal(t, DefaultPolicy.MaxAttempts, e.policy.MaxAttempts)
	assert.Equal(t, DefaultPolicy.BaseDelay, e.policy.BaseDelay)
	assert.Equal(t, DefaultPolicy.Growth, e.policy.Growth)
}

func TestDelayGrowth(t *testing.T) {
	linear := NewExecutor(Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Growth: GrowthLinear})
	assert.Equal(t, 100*time.Millisecond, linear.delay(1))
	assert.Equal(t, 300*time.Millisecond, linear.delay(3))

	exponential := NewExecutor(Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Growth: GrowthExponential})
	assert.Equal(t, 100*time.Millisecond, exponential.delay(1))
	assert.Equal(t, 400*time.Millisecond, exponential.delay(3))
}

func TestDelayJitterBounds(t *testing.T) {
	e := NewExecutor(Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Growth: GrowthLinear, Jitter: true})

	for range 50 {
		d := e.delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestAttempts_ForeignError(t *testing.T) {
	assert.Equal(t, 0, Attempts(errors.New("plain")))
	assert.Equal(t, 0, Attempts(nil))
}
