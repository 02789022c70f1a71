/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs operations with delays between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable tells if the error is transient and the operation may be repeated.
type IsRetryable func(error) bool

// Func is an operation that may be repeated.
type Func func(ctx context.Context) error

// NotifyFunc is called after each failed attempt that will be repeated.
// Attempts are numbered from 1.
type NotifyFunc func(err error, attempt int, delay time.Duration)

// Policy creates backoff.BackOff that determines delays between attempts.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialPolicy makes delays grow exponentially (1.5 multiplier with jitter) starting from InitialInterval.
type ExponentialPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration // Zero means backoff.DefaultMaxInterval.

	// MaxAttempts limits the total number of attempts including the first one. Zero means no limit.
	MaxAttempts int
}

// NewBackOff implements Policy.
func (p ExponentialPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1))
	}
	b.Reset()
	return b
}

// Do calls fn until it succeeds, the policy gives up, the error is not retryable, or ctx is done.
// A nil isRetryable treats any error as retryable. notify may be nil.
func Do(ctx context.Context, p Policy, isRetryable IsRetryable, notify NotifyFunc, fn Func) error {
	bctx := backoff.WithContext(p.NewBackOff(), ctx)
	attempt := 0
	op := func() error {
		attempt++
		err := fn(bctx.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var bnotify backoff.Notify
	if notify != nil {
		bnotify = func(err error, delay time.Duration) { notify(err, attempt, delay) }
	}
	return backoff.RetryNotify(op, bctx, bnotify)
}
