/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package redisclient creates go-redis clients from the configuration
// and provides a periodic ping of Redis availability.
package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/retry"
)

// NewUniversalOptions converts the configuration to go-redis options.
func NewUniversalOptions(cfg *Config) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  time.Duration(cfg.Timeouts.Dial),
		ReadTimeout:  time.Duration(cfg.Timeouts.Read),
		WriteTimeout: time.Duration(cfg.Timeouts.Write),
	}
}

// NewClient creates a Redis client (standalone, cluster, or sentinel-backed, see Config)
// and makes sure the server is reachable.
// PING is retried with exponential delays up to Connect.MaxAttempts times.
// Authentication errors are not retried.
func NewClient(ctx context.Context, cfg *Config, logger log.FieldLogger) (redis.UniversalClient, error) {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	logger = logger.With(log.String("redis_addrs", strings.Join(cfg.Addrs, ",")))

	client := redis.NewUniversalClient(NewUniversalOptions(cfg))
	if err := ping(ctx, client, &cfg.Connect, logger); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis")
	return client, nil
}

func ping(ctx context.Context, client redis.UniversalClient, cfg *ConnectConfig, logger log.FieldLogger) error {
	policy := retry.ExponentialPolicy{
		InitialInterval: time.Duration(cfg.InitialInterval),
		MaxAttempts:     cfg.MaxAttempts,
	}
	notify := func(err error, attempt int, delay time.Duration) {
		logger.Warn("redis is not available, ping will be retried",
			log.Error(err), log.Int("attempt", attempt), log.Duration("delay", delay))
	}
	return retry.Do(ctx, policy, isRetryable, notify, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, prefix := range []string{"NOAUTH", "WRONGPASS", "ERR AUTH", "NOPERM"} {
		if strings.HasPrefix(msg, prefix) {
			return false
		}
	}
	return true
}
