/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package middleware contains HTTP middlewares used by the quota service:
// request ids, logging, panic recovery, request metrics and quota enforcement backed by quota.Limiter.
package middleware
