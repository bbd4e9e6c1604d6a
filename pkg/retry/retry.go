// Package retry expresses the retry behavior of remote calls as a
// policy value injected into the components that talk to the network,
// instead of backoff loops scattered inline.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
)

// Policy bounds the retries of one remote operation
type Policy struct {
	// MaxAttempts is the total number of tries including the first one
	MaxAttempts uint64
	// BaseDelay is the initial interval between attempts
	BaseDelay time.Duration
	// MaxDelay caps the interval growth
	MaxDelay time.Duration
	// Jitter is the randomization factor applied to each interval
	Jitter float64
	// Sleep overrides the wait between attempts, used by tests
	Sleep func(time.Duration)
}

// Default is the policy applied to key service and object store calls
// unless the caller injects another one.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.5,
	}
}

// Permanent marks an error as not retryable. Permission and integrity
// failures must pass through untouched, retrying cannot change an
// authorization decision or repair tampered data.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy until it succeeds, returns a permanent
// error, exhausts the attempts, or the context is cancelled.
func (p Policy) Do(ctx context.Context, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = p.MaxDelay
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(exp, attempts-1), ctx)
	bo.Reset()

	for {
		err := op()
		if err == nil {
			return nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}

		next := bo.NextBackOff()
		if next == backoff.Stop {
			return err
		}

		if p.Sleep != nil {
			p.Sleep(next)
			continue
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
