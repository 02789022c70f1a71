/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quota

import (
	"errors"
	"fmt"
	"time"
)

// ErrLimitExceeded is matched (via errors.Is) by every LimitExceededError.
var ErrLimitExceeded = errors.New("limit exceeded")

// ErrElementsRequired is returned by Limiter.Hit when the limiter has a unique set limit
// and no elements are passed. Redis is not called in this case.
var ErrElementsRequired = errors.New("elements are required for limiters with unique set limits")

// ErrUnknownLimit is returned when a limit name is not registered in the limiter.
var ErrUnknownLimit = errors.New("unknown limit")

// ErrUnexpectedReply is returned when a script reply cannot be decoded.
var ErrUnexpectedReply = errors.New("unexpected script reply")

// LimitExceededError is returned by Limiter.Hit and Limiter.Check when the limit is exceeded.
type LimitExceededError struct {
	Key       string
	LimitName string
	TTL       time.Duration
}

// Error returns a string representation of the error.
func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit %q for key %q exceeded, retry after %s", e.LimitName, e.Key, e.TTL)
}

// Is makes errors.Is(err, ErrLimitExceeded) work.
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// AsLimitExceeded extracts LimitExceededError from the error chain.
func AsLimitExceeded(err error) (*LimitExceededError, bool) {
	var exceededErr *LimitExceededError
	if errors.As(err, &exceededErr) {
		return exceededErr, true
	}
	return nil, false
}
