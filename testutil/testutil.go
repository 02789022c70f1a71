/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains helpers for tests: assertions for errors, HTTP responses
// and Prometheus metrics, and an in-memory Redis server.
package testutil

type tHelper interface {
	Helper()
}
