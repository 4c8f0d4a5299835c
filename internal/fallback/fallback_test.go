package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstReturnsFirstMatch(t *testing.T) {
	calls := []int{}
	candidates := []Candidate[string]{
		func(ctx context.Context) (string, bool, error) {
			calls = append(calls, 0)
			return "", false, nil
		},
		func(ctx context.Context) (string, bool, error) {
			calls = append(calls, 1)
			return "second", true, nil
		},
		func(ctx context.Context) (string, bool, error) {
			calls = append(calls, 2)
			return "third", true, nil
		},
	}

	val, ok := First(context.Background(), candidates, nil)

	require.True(t, ok)
	assert.Equal(t, "second", val)
	assert.Equal(t, []int{0, 1}, calls, "scan must stop at the first match")
}

func TestFirstSwallowsErrorsAndReportsThem(t *testing.T) {
	var reported []int
	boom := errors.New("boom")
	candidates := []Candidate[int]{
		func(ctx context.Context) (int, bool, error) { return 0, false, boom },
		func(ctx context.Context) (int, bool, error) { return 42, true, nil },
	}

	val, ok := First(context.Background(), candidates, func(i int, err error) {
		assert.ErrorIs(t, err, boom)
		reported = append(reported, i)
	})

	require.True(t, ok)
	assert.Equal(t, 42, val)
	assert.Equal(t, []int{0}, reported)
}

func TestFirstExhaustedReturnsZero(t *testing.T) {
	candidates := []Candidate[string]{
		func(ctx context.Context) (string, bool, error) { return "", false, nil },
		func(ctx context.Context) (string, bool, error) { return "", false, nil },
	}

	val, ok := First(context.Background(), candidates, nil)

	assert.False(t, ok)
	assert.Empty(t, val)
}

func TestFirstStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	candidates := []Candidate[int]{
		func(ctx context.Context) (int, bool, error) {
			called = true
			return 1, true, nil
		},
	}

	_, ok := First(ctx, candidates, nil)

	assert.False(t, ok)
	assert.False(t, called, "no candidate may run after cancellation")
}

func TestPollSucceedsWhenPredicateHolds(t *testing.T) {
	count := 0
	err := Poll(context.Background(), 10*time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		count++
		return count >= 2, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPollFirstInvocationIsImmediate(t *testing.T) {
	start := time.Now()
	err := Poll(context.Background(), time.Second, 5*time.Second, func(ctx context.Context) (bool, error) {
		return true, nil
	})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPollDeadlineBeatsLatePredicate(t *testing.T) {
	// Polls run at 0ms and 25ms; the deadline at 45ms lands before the
	// third poll, so a predicate that only holds on the third call loses.
	count := 0
	err := Poll(context.Background(), 25*time.Millisecond, 45*time.Millisecond, func(ctx context.Context) (bool, error) {
		count++
		return count >= 3, nil
	})

	assert.ErrorIs(t, err, ErrDeadline)
	assert.Equal(t, 2, count)
}

func TestPollDistinguishesCancellationFromDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Poll(ctx, 10*time.Millisecond, time.Minute, func(ctx context.Context) (bool, error) {
		return false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDeadline)
}

func TestPollSwallowsPredicateErrors(t *testing.T) {
	count := 0
	err := Poll(context.Background(), 5*time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		count++
		if count < 3 {
			return true, errors.New("transient") // error invalidates the true
		}
		return true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
