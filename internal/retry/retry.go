// Package retry runs fallible operations with bounded, classified retries.
// The classifier decides whether an error is worth another attempt; fatal
// errors short-circuit immediately. Delays grow linearly or exponentially
// from a base delay, with optional jitter to keep concurrent retries from
// synchronizing against the same upstream.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/phrazzld/easel-api/internal/platform/logger"
)

// Growth selects how the delay scales across attempts.
type Growth string

// Supported growth modes
const (
	GrowthLinear      Growth = "linear"
	GrowthExponential Growth = "exponential"
)

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration

	// Growth scales the delay on each subsequent attempt.
	Growth Growth

	// Jitter, when set, randomizes each delay between 50% and 100% of its
	// computed value.
	Jitter bool
}

// DefaultPolicy is used when a zero policy is handed to NewExecutor.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	Growth:      GrowthExponential,
	Jitter:      true,
}

// Error annotates a failure with the number of attempts that produced it.
type Error struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Operation, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Attempts reports how many attempts err consumed, or 0 if err was not
// produced by an Executor.
func Attempts(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Attempts
	}
	return 0
}

// Executor retries operations under a single Policy. Safe for concurrent
// use.
type Executor struct {
	policy Policy

	mu  sync.Mutex
	rng *rand.Rand
}

// NewExecutor creates an Executor. A zero policy falls back to
// DefaultPolicy; a partial one has its missing fields defaulted.
func NewExecutor(policy Policy) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultPolicy.BaseDelay
	}
	if policy.Growth != GrowthLinear && policy.Growth != GrowthExponential {
		policy.Growth = DefaultPolicy.Growth
	}

	return &Executor{
		policy: policy,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs fn until it succeeds, fails fatally, exhausts the attempt budget,
// or the context is cancelled. retryable classifies errors; a nil classifier
// treats every error as retryable. The returned error always wraps the last
// attempt's error in an *Error carrying the attempt count.
func (e *Executor) Do(ctx context.Context, operation string, retryable func(error) bool, fn func(ctx context.Context) error) error {
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &Error{Operation: operation, Attempts: attempt - 1, Err: err}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if retryable != nil && !retryable(lastErr) {
			log.Warn("operation failed fatally, not retrying",
				"operation", operation,
				"attempt", attempt,
				"error", lastErr)
			return &Error{Operation: operation, Attempts: attempt, Err: lastErr}
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.delay(attempt)
		log.Info("operation failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &Error{Operation: operation, Attempts: attempt, Err: ctx.Err()}
		}
	}

	log.Warn("operation exhausted retry budget",
		"operation", operation,
		"attempts", e.policy.MaxAttempts,
		"error", lastErr)
	return &Error{Operation: operation, Attempts: e.policy.MaxAttempts, Err: lastErr}
}

// delay computes the wait after the given 1-based failed attempt.
func (e *Executor) delay(attempt int) time.Duration {
	base := float64(e.policy.BaseDelay)

	var scaled float64
	switch e.policy.Growth {
	case GrowthLinear:
		scaled = base * float64(attempt)
	default:
		scaled = base * math.Pow(2, float64(attempt-1))
	}

	if e.policy.Jitter {
		e.mu.Lock()
		factor := 0.5 + e.rng.Float64()*0.5
		e.mu.Unlock()
		scaled *= factor
	}

	return time.Duration(scaled)
}
