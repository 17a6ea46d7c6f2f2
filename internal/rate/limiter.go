package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	Prefix      string
	MaxFailures int
	Cooldown    time.Duration
}

// Limiter counts failed session establishments per peer in fixed windows
// stored in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gs"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// SubjectKey names the counter of a certificate subject.
func SubjectKey(subject string) string {
	return "s:" + subject
}

// RemoteKey names the counter of a peer-assigned session identifier.
func RemoteKey(id uint16) string {
	return "r:" + strconv.FormatUint(uint64(id), 10)
}

// Check returns ErrRateLimited when any of keys has used up its failure
// budget for the current window.
func (l *Limiter) Check(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		count, err := l.redis.Get(ctx, l.key(key)).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxFailures) {
			return ErrRateLimited
		}
	}
	return nil
}

// Fail records one failed establishment against each key.
func (l *Limiter) Fail(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := l.incrementWithTTL(ctx, l.key(key), l.config.Cooldown); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the counters of keys after a successful establishment.
func (l *Limiter) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = l.key(key)
	}
	if err := l.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the current failure count of key.
func (l *Limiter) Failures(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(k string) string {
	return l.config.Prefix + ":throttle:" + k
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the first hit starts it.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
