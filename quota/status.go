/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quota

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is a state of the limit for a particular caller key.
type State int

// Possible states of the limit.
const (
	// StateUntouched means the limit has not been hit within the current window.
	StateUntouched State = iota
	// StateActive means the window is started, and the threshold is not exceeded yet.
	StateActive
	// StateBlocked means the threshold was exceeded and the block is not expired yet.
	StateBlocked
)

// String returns a human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateUntouched:
		return "untouched"
	case StateActive:
		return "active"
	case StateBlocked:
		return "blocked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status describes the limit for a particular caller key.
// Counter is meaningful only for StateActive, TTL - for StateActive and StateBlocked.
type Status struct {
	State   State
	Counter int64
	TTL     time.Duration
}

// Blocked reports whether the limit is blocked.
func (s Status) Blocked() bool {
	return s.State == StateBlocked
}

type statusJSON struct {
	State   string `json:"state"`
	Counter *int64 `json:"counter,omitempty"`
	TTL     *int64 `json:"ttl,omitempty"`
}

// MarshalJSON encodes the status. TTL is encoded in seconds.
// Blocked status has no counter, untouched status has no ttl.
func (s Status) MarshalJSON() ([]byte, error) {
	res := statusJSON{State: s.State.String()}
	counter := s.Counter
	ttl := int64(s.TTL / time.Second)
	switch s.State {
	case StateUntouched:
		counter = 0
		res.Counter = &counter
	case StateActive:
		res.Counter = &counter
		res.TTL = &ttl
	case StateBlocked:
		res.TTL = &ttl
	}
	return json.Marshal(res)
}

// Statuses maps limit names to their statuses.
type Statuses map[string]Status

// decodeStatus classifies a single {value, ttl} tuple of the get script.
func decodeStatus(value, ttlSecs int64) Status {
	switch {
	case value == -1:
		return Status{State: StateBlocked, TTL: time.Duration(ttlSecs) * time.Second}
	case ttlSecs == 0:
		return Status{State: StateUntouched}
	default:
		return Status{State: StateActive, Counter: value, TTL: time.Duration(ttlSecs) * time.Second}
	}
}

// decodeStatuses decodes the get script reply into statuses ordered as the limits of the registry.
func decodeStatuses(reply interface{}, limitsNum int) ([]Status, error) {
	items, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: got %T instead of array", ErrUnexpectedReply, reply)
	}
	if len(items) != limitsNum {
		return nil, fmt.Errorf("%w: got %d items, want %d", ErrUnexpectedReply, len(items), limitsNum)
	}
	statuses := make([]Status, len(items))
	for i, item := range items {
		pair, err := decodeIntPair(item)
		if err != nil {
			return nil, fmt.Errorf("item #%d: %w", i, err)
		}
		if pair[0] < -1 || pair[1] < 0 {
			return nil, fmt.Errorf("%w: item #%d has invalid values %v", ErrUnexpectedReply, i, pair)
		}
		statuses[i] = decodeStatus(pair[0], pair[1])
	}
	return statuses, nil
}

// decodeBreach decodes the hit script reply.
func decodeBreach(reply interface{}, limitsNum int) (index int, ttl time.Duration, breached bool, err error) {
	items, ok := reply.([]interface{})
	if !ok {
		return 0, 0, false, fmt.Errorf("%w: got %T instead of array", ErrUnexpectedReply, reply)
	}
	if len(items) == 0 {
		return 0, 0, false, nil
	}
	pair, err := decodeIntPair(items)
	if err != nil {
		return 0, 0, false, err
	}
	if pair[0] < 0 || pair[0] >= int64(limitsNum) {
		return 0, 0, false, fmt.Errorf("%w: limit index %d is out of range [0, %d)", ErrUnexpectedReply, pair[0], limitsNum)
	}
	if pair[1] < 0 {
		return 0, 0, false, fmt.Errorf("%w: negative ttl %d", ErrUnexpectedReply, pair[1])
	}
	return int(pair[0]), time.Duration(pair[1]) * time.Second, true, nil
}

func decodeIntPair(v interface{}) ([2]int64, error) {
	items, ok := v.([]interface{})
	if !ok || len(items) != 2 {
		return [2]int64{}, fmt.Errorf("%w: %v is not a pair", ErrUnexpectedReply, v)
	}
	var res [2]int64
	for i, item := range items {
		num, ok := item.(int64)
		if !ok {
			return [2]int64{}, fmt.Errorf("%w: %v (%T) is not an integer", ErrUnexpectedReply, item, item)
		}
		res[i] = num
	}
	return res, nil
}
