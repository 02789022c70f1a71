/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package quota provides a distributed limiter of hits and unique elements backed by Redis.
//
// A Limiter is created once with a namespace and an ordered list of named limits.
// Every limit is either a plain hit counter (KindCounter) or a counter of distinct
// elements (KindUniqueSet). Limits are evaluated per caller key (user id, IP address, API key, etc.):
//
//	limiter, err := quota.New(redisClient, "login", []quota.Limit{
//		{Name: "burst", Kind: quota.KindCounter, Threshold: 5, TTL: time.Minute},
//		{Name: "daily", Kind: quota.KindCounter, Threshold: 100, TTL: 24 * time.Hour, BlockTTL: 48 * time.Hour},
//	})
//	...
//	if err = limiter.Hit(ctx, userID); err != nil {
//		var exceededErr *quota.LimitExceededError
//		if errors.As(err, &exceededErr) {
//			// exceededErr.LimitName, exceededErr.TTL
//		}
//	}
//
// # Storage
//
// Each (caller key, limit) pair is stored in its own Redis record named
// "<prefix>:<namespace>:<callerKey>:<limitName>". A record is either missing (untouched),
// active (a counter or a set with the remaining window TTL) or blocked (the "-1" marker
// with the remaining block TTL). The window starts with the first hit and is never extended.
// When a hit makes the counter (or the set cardinality) exceed the threshold,
// the record becomes blocked for BlockTTL (or TTL when BlockTTL is zero).
//
// # Atomicity
//
// Hit and Get are executed as Lua scripts, so all limits of a single caller key are evaluated
// and updated as one indivisible unit. No client-side locking or retrying is done.
// Errors returned by Redis (including context cancellation) are passed through unchanged.
// Hit is not idempotent: retrying it after an ambiguous failure may count the same hit twice.
package quota
