package harvest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldRetryBudget(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(3, time.Second)
	err := errors.New("boom")

	require.True(t, policy.ShouldRetry(err, 1))
	require.True(t, policy.ShouldRetry(err, 2))
	require.False(t, policy.ShouldRetry(err, 3), "budget exhausted")
	require.False(t, policy.ShouldRetry(nil, 0), "success never retries")
}

func TestShouldRetryErrorKinds(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(3, time.Second)

	require.True(t, policy.ShouldRetry(&TransientError{Err: errors.New("reset")}, 1))
	require.True(t, policy.ShouldRetry(&ValidationError{URL: "u", Reason: "bad magic"}, 1),
		"validation failures are retryable")
	require.False(t, policy.ShouldRetry(context.Canceled, 1))
	require.False(t, policy.ShouldRetry(context.DeadlineExceeded, 1))
}

func TestBackoffNonDecreasing(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(5, 2*time.Second)

	var prev time.Duration
	for attempt := 0; attempt < 4; attempt++ {
		delay := policy.Backoff(attempt)
		require.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		prev = delay
	}
}

func TestBackoffWindows(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(3, 2*time.Second)

	first := policy.Backoff(0)
	require.GreaterOrEqual(t, first, time.Second)
	require.Less(t, first, 2*time.Second)

	second := policy.Backoff(1)
	require.GreaterOrEqual(t, second, 2*time.Second)
	require.Less(t, second, 4*time.Second)
}

func TestBackoffCapped(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(20, 2*time.Second)
	require.LessOrEqual(t, policy.Backoff(19), 30*time.Second)
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	wrapped := &TransientError{Err: errors.New("dial tcp: reset")}
	require.True(t, IsTransient(wrapped))
	require.False(t, IsValidation(wrapped))
	require.ErrorContains(t, wrapped, "transient")

	vErr := &ValidationError{URL: "https://example.test/doc.pdf", Reason: "content-type text/html"}
	require.True(t, IsValidation(vErr))
	require.False(t, IsTransient(vErr))
	require.ErrorContains(t, vErr, "doc.pdf")
}
