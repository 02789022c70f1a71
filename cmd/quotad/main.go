/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Quotad is an HTTP service that exposes Redis-backed quota limiters.
//
// Usage:
//
//	# Start the service
//	quotad serve --config /etc/quotad/quotad.yml
//
//	# Check the configuration without starting anything
//	quotad validate --config /etc/quotad/quotad.yml
//
// Every configuration parameter may be overridden by an environment variable
// with the QUOTAD_ prefix (e.g., QUOTAD_REDIS_ADDRS, QUOTAD_SERVER_ADDRESS).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
