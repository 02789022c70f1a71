/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// NewRedis starts an in-memory Redis server (with Lua scripting support) and returns it with a connected client.
// Both are closed when the test finishes. Use Miniredis.FastForward to emulate keys expiration.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}

// UniqueName returns a globally unique name with the given prefix.
// It's useful for namespaces, keys, and metric names that should not clash between tests.
func UniqueName(prefix string) string {
	return prefix + "_" + xid.New().String()
}
