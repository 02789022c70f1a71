/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stretchr/testify/require"
)

// RequireNoErrorInChannel asserts that the buffered channel has no pending error. It doesn't block.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case err := <-c:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}

// RequireErrorInChannel waits for an error in the channel and returns it.
// It fails the test if nothing non-nil is received within the timeout.
func RequireErrorInChannel(t require.TestingT, c <-chan error, timeout time.Duration, msgAndArgs ...interface{}) error {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case err := <-c:
		require.Error(t, err, msgAndArgs...)
		return err
	case <-time.After(timeout):
		require.FailNow(t, fmt.Sprintf("no error received within %s", timeout), msgAndArgs...)
		return nil
	}
}

// RequireErrorIsAny asserts that errors.Is(err, target) is true for at least one of the targets.
// Useful when the exact error depends on timing (e.g., context.Canceled vs context.DeadlineExceeded).
func RequireErrorIsAny(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	expected := make([]string, 0, len(targets))
	for _, target := range targets {
		if errors.Is(err, target) {
			return
		}
		expected = append(expected, fmt.Sprintf("%q", target.Error()))
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%q", e.Error()))
	}
	require.FailNow(t, fmt.Sprintf("At least one target error should be in err chain:\n"+
		"expected: [%s]\n"+
		"in chain: %s", strings.Join(expected, "; "), strings.Join(chain, "\n\t")), msgAndArgs...)
}
