package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPingTimeout   = 2 * time.Second
	defaultPingAttempts  = 3
	pingInitialInterval  = 200 * time.Millisecond
	pingMaxElapsedWindow = 10 * time.Second
)

// Config describes the Redis connection used for change notifications and
// idempotency keys.
type Config struct {
	URL string

	// PingTimeout bounds each startup ping.
	PingTimeout time.Duration

	// PingAttempts is the number of pings tried before giving up.
	PingAttempts uint64
}

// NewClient connects to Redis and waits for it to answer a ping. Redis only
// backs optional features, so the caller is expected to fall back when this
// fails rather than abort startup.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	attempts := cfg.PingAttempts
	if attempts == 0 {
		attempts = defaultPingAttempts
	}

	client := redis.NewClient(opts)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pingInitialInterval
	b.MaxElapsedTime = pingMaxElapsedWindow

	err = backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}, backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return client, nil
}
