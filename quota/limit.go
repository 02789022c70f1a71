/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quota

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind is a type of the limit.
type Kind int

// Supported kinds of limits.
const (
	// KindCounter counts every hit.
	KindCounter Kind = iota
	// KindUniqueSet counts distinct elements passed to Limiter.Hit.
	KindUniqueSet
)

// String returns the name of the kind as it is used in the configuration.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindUniqueSet:
		return "set"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses the kind of limit from its name ("counter" or "set").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "counter":
		return KindCounter, nil
	case "set", "unique_set", "uniqueset":
		return KindUniqueSet, nil
	}
	return 0, fmt.Errorf("unknown limit kind %q", s)
}

// scriptFlag returns the kind flag passed to the hit script.
func (k Kind) scriptFlag() string {
	if k == KindUniqueSet {
		return "1"
	}
	return "0"
}

// BreachFunc is called when the limit is exceeded, before LimitExceededError is returned.
// The ttl argument is the remaining time of the block.
// If it returns a non-nil error, this error is returned instead of LimitExceededError.
type BreachFunc func(ctx context.Context, key string, ttl time.Duration) error

// Limit defines a single named limit.
type Limit struct {
	// Name identifies the limit within the Limiter. It's a part of the Redis key.
	Name string

	// Kind determines what is counted: hits or distinct elements.
	Kind Kind

	// Threshold is the maximum number of hits (or distinct elements) allowed within the window.
	Threshold int64

	// TTL is the window duration. The window starts with the first hit.
	// Only whole seconds are supported.
	TTL time.Duration

	// BlockTTL is how long the limit stays blocked after the threshold is exceeded.
	// Zero value means TTL is used.
	BlockTTL time.Duration

	// OnBreach is an optional hook called when the limit is exceeded.
	OnBreach BreachFunc
}

// Validate checks that the limit is well-formed.
func (l *Limit) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.Contains(l.Name, ":") {
		return fmt.Errorf("name %q cannot contain ':'", l.Name)
	}
	if l.Kind != KindCounter && l.Kind != KindUniqueSet {
		return fmt.Errorf("unknown kind %d", int(l.Kind))
	}
	if l.Threshold < 1 {
		return fmt.Errorf("threshold should be >= 1, got %d", l.Threshold)
	}
	if l.TTL < time.Second {
		return fmt.Errorf("ttl should be >= 1s, got %s", l.TTL)
	}
	if l.TTL%time.Second != 0 {
		return fmt.Errorf("ttl should be a whole number of seconds, got %s", l.TTL)
	}
	if l.BlockTTL < 0 {
		return fmt.Errorf("block ttl should be >= 0, got %s", l.BlockTTL)
	}
	if l.BlockTTL%time.Second != 0 {
		return fmt.Errorf("block ttl should be a whole number of seconds, got %s", l.BlockTTL)
	}
	return nil
}

// EffectiveBlockTTL returns the duration of the block that follows the breach.
func (l *Limit) EffectiveBlockTTL() time.Duration {
	if l.BlockTTL <= 0 {
		return l.TTL
	}
	return l.BlockTTL
}
