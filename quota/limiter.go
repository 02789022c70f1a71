/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quota

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-quotakit/log"
)

// DefaultKeyPrefix is a default prefix of Redis keys.
const DefaultKeyPrefix = "@x:limiter"

//go:embed scripts/hit.lua
var hitScriptSource string

//go:embed scripts/get.lua
var getScriptSource string

// Scripts are run with EVALSHA, EVAL is used as a fallback when Redis has no script in its cache.
var (
	hitScript = redis.NewScript(hitScriptSource)
	getScript = redis.NewScript(getScriptSource)
)

// Client is a subset of go-redis client methods used by the Limiter.
// It's implemented by *redis.Client, *redis.ClusterClient and *redis.Ring.
type Client interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Opts represents options for the Limiter.
type Opts struct {
	// KeyPrefix is prepended to all Redis keys. DefaultKeyPrefix is used if empty.
	KeyPrefix string

	// ClusterHashTag wraps the caller key in braces ("{key}"),
	// so all records of the caller key are stored in the same Redis Cluster slot.
	// It's required when the Limiter works with Redis Cluster and has more than one limit.
	ClusterHashTag bool

	// Logger is used for logging breaches. Logging is disabled if nil.
	Logger log.FieldLogger

	// MetricsCollector collects metrics. Metrics are disabled if nil.
	MetricsCollector MetricsCollector
}

// Limiter evaluates named limits for caller keys.
// It's immutable after creation and safe for concurrent use.
type Limiter struct {
	client    Client
	namespace string
	keys      keyBuilder
	registry  *registry
	logger    log.FieldLogger
	metrics   MetricsCollector
}

// New creates a new Limiter with default options.
// The order of limits matters: Hit evaluates them in this order.
func New(client Client, namespace string, limits []Limit) (*Limiter, error) {
	return NewWithOpts(client, namespace, limits, Opts{})
}

// MustNew is a version of New that panics if an error occurs.
func MustNew(client Client, namespace string, limits []Limit) *Limiter {
	l, err := New(client, namespace, limits)
	if err != nil {
		panic(err)
	}
	return l
}

// NewWithOpts creates a new Limiter with the provided options.
func NewWithOpts(client Client, namespace string, limits []Limit, opts Opts) (*Limiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	reg, err := newRegistry(limits)
	if err != nil {
		return nil, err
	}

	keyPrefix := opts.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	metrics := opts.MetricsCollector
	if metrics == nil {
		metrics = disabledMetricsCollector
	}

	return &Limiter{
		client:    client,
		namespace: namespace,
		keys:      keyBuilder{prefix: keyPrefix, namespace: namespace, hashTag: opts.ClusterHashTag},
		registry:  reg,
		logger:    logger.With(log.String("quota_namespace", namespace)),
		metrics:   metrics,
	}, nil
}

// Namespace returns the namespace of the limiter.
func (l *Limiter) Namespace() string {
	return l.namespace
}

// LimitNames returns names of the limits in the registration order.
func (l *Limiter) LimitNames() []string {
	return append([]string(nil), l.registry.names...)
}

// UsesElements reports whether Hit requires elements (i.e., there is a unique set limit).
func (l *Limiter) UsesElements() bool {
	return l.registry.usesSet
}

// Hit registers a hit of the caller key in all limits.
// Elements are added to every unique set limit; they are ignored by counter limits.
//
// If a limit is already blocked or becomes blocked because of this hit,
// the OnBreach hook of the limit is called and LimitExceededError is returned.
// Limits that come after an already blocked limit are not touched.
func (l *Limiter) Hit(ctx context.Context, key string, elements ...string) error {
	if l.registry.usesSet && len(elements) == 0 {
		return ErrElementsRequired
	}
	if l.registry.len() == 0 {
		return nil
	}

	keys := l.keys.buildAll(key, l.registry.names)
	startTime := time.Now()
	reply, err := hitScript.Run(ctx, l.client, keys, l.registry.hitArgs(elements)...).Result()
	if err = l.observeStoreCall(OpHit, startTime, err); err != nil {
		return err
	}

	index, ttl, breached, err := decodeBreach(reply, l.registry.len())
	if err != nil {
		return err
	}
	if !breached {
		return nil
	}
	return l.breach(ctx, OpHit, key, index, ttl)
}

// Get returns statuses of all limits for the caller key. It doesn't change anything in Redis.
func (l *Limiter) Get(ctx context.Context, key string) (Statuses, error) {
	statuses, err := l.fetch(ctx, OpGet, key)
	if err != nil {
		return nil, err
	}
	res := make(Statuses, len(statuses))
	for i, st := range statuses {
		res[l.registry.names[i]] = st
	}
	return res, nil
}

// Check returns LimitExceededError if at least one limit is blocked for the caller key.
// If several limits are blocked, the one with the greatest remaining TTL is reported
// (the first one in the registration order if TTLs are equal).
// A blocked record with less than a second left is not reported.
// The OnBreach hook of the reported limit is called the same way as in Hit.
func (l *Limiter) Check(ctx context.Context, key string) error {
	statuses, err := l.fetch(ctx, OpCheck, key)
	if err != nil {
		return err
	}
	blockedIndex := -1
	var blockedTTL time.Duration
	for i, st := range statuses {
		if st.Blocked() && st.TTL > blockedTTL {
			blockedIndex = i
			blockedTTL = st.TTL
		}
	}
	if blockedIndex == -1 {
		return nil
	}
	return l.breach(ctx, OpCheck, key, blockedIndex, blockedTTL)
}

// Reset deletes the records of the named limits for the caller key.
// All limits are reset if no names are passed. Resetting an untouched limit is a no-op.
func (l *Limiter) Reset(ctx context.Context, key string, limitNames ...string) error {
	names := l.registry.names
	if len(limitNames) != 0 {
		if err := l.registry.resolve(limitNames); err != nil {
			return err
		}
		names = limitNames
	}
	if len(names) == 0 {
		return nil
	}
	startTime := time.Now()
	err := l.client.Del(ctx, l.keys.buildAll(key, names)...).Err()
	return l.observeStoreCall(OpReset, startTime, err)
}

func (l *Limiter) fetch(ctx context.Context, op string, key string) ([]Status, error) {
	if l.registry.len() == 0 {
		return nil, nil
	}
	keys := l.keys.buildAll(key, l.registry.names)
	startTime := time.Now()
	reply, err := getScript.Run(ctx, l.client, keys).Result()
	if err = l.observeStoreCall(op, startTime, err); err != nil {
		return nil, err
	}
	return decodeStatuses(reply, l.registry.len())
}

func (l *Limiter) breach(ctx context.Context, op string, key string, index int, ttl time.Duration) error {
	limit := &l.registry.limits[index]
	l.metrics.IncBreaches(op, limit.Name)
	l.logger.Debug("quota limit exceeded",
		log.String("quota_key", key),
		log.String("quota_limit", limit.Name),
		log.String("quota_op", op),
		log.Duration("quota_ttl", ttl),
	)
	if limit.OnBreach != nil {
		if err := limit.OnBreach(ctx, key, ttl); err != nil {
			return err
		}
	}
	return &LimitExceededError{Key: key, LimitName: limit.Name, TTL: ttl}
}

// observeStoreCall records metrics of the finished Redis call and returns its error unchanged.
func (l *Limiter) observeStoreCall(op string, startTime time.Time, err error) error {
	l.metrics.ObserveStoreCall(op, time.Since(startTime))
	if err != nil {
		l.metrics.IncStoreErrors(op)
	}
	return err
}
