/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides Recorder, an implementation of log.FieldLogger
// that records logged entries, so tests may check what was logged.
package logtest
