package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts uint64) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Sleep:       func(time.Duration) {},
	}
}

func TestDoSucceedsEventually(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")

	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	denied := errors.New("denied")

	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return Permanent(denied)
	})

	require.ErrorIs(t, err, denied)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Default().Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoSleepsBetweenAttempts(t *testing.T) {
	var slept []time.Duration
	policy := Policy{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Minute,
		Sleep: func(d time.Duration) {
			slept = append(slept, d)
		},
	}

	err := policy.Do(context.Background(), func() error {
		return errors.New("flaky")
	})

	require.Error(t, err)
	// without jitter the intervals grow by the backoff multiplier
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		150 * time.Millisecond,
		225 * time.Millisecond,
	}, slept)
}

func TestDoCapsDelay(t *testing.T) {
	var slept []time.Duration
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    120 * time.Millisecond,
		Sleep: func(d time.Duration) {
			slept = append(slept, d)
		},
	}

	err := policy.Do(context.Background(), func() error {
		return errors.New("flaky")
	})

	require.Error(t, err)
	require.Len(t, slept, 4)
	for _, d := range slept {
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{Sleep: func(time.Duration) {}}.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
