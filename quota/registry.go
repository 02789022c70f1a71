/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quota

import (
	"fmt"
	"strconv"
	"time"
)

const scriptArgsPerLimit = 4

// registry keeps limits in the registration order.
// Index i of limits corresponds to KEYS[i+1] of the scripts and to the i-th tuple of their replies.
type registry struct {
	limits  []Limit
	names   []string
	indexes map[string]int
	usesSet bool
	args    []interface{}
}

func newRegistry(limits []Limit) (*registry, error) {
	r := &registry{
		limits:  make([]Limit, len(limits)),
		names:   make([]string, len(limits)),
		indexes: make(map[string]int, len(limits)),
		args:    make([]interface{}, 0, len(limits)*scriptArgsPerLimit),
	}
	copy(r.limits, limits)
	for i := range r.limits {
		l := &r.limits[i]
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("validate limit #%d: %w", i, err)
		}
		if _, exists := r.indexes[l.Name]; exists {
			return nil, fmt.Errorf("duplicate limit name %q", l.Name)
		}
		r.indexes[l.Name] = i
		r.names[i] = l.Name
		if l.Kind == KindUniqueSet {
			r.usesSet = true
		}
		r.args = append(r.args,
			l.Kind.scriptFlag(),
			strconv.FormatInt(l.Threshold, 10),
			formatSeconds(l.TTL),
			formatSeconds(l.BlockTTL),
		)
	}
	return r, nil
}

func (r *registry) len() int {
	return len(r.limits)
}

// hitArgs returns ARGV for the hit script: the encoded limits followed by the elements.
func (r *registry) hitArgs(elements []string) []interface{} {
	args := make([]interface{}, 0, len(r.args)+len(elements))
	args = append(args, r.args...)
	for _, el := range elements {
		args = append(args, el)
	}
	return args
}

// resolve checks that all the passed names are registered.
func (r *registry) resolve(names []string) error {
	for _, name := range names {
		if _, ok := r.indexes[name]; !ok {
			return fmt.Errorf("%w %q", ErrUnknownLimit, name)
		}
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}
