package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, max int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, Config{MaxFailures: max, Cooldown: time.Minute}), mr
}

func TestLimiterBlocksAfterMaxFailures(t *testing.T) {
	l, _ := newLimiter(t, 2)
	ctx := context.Background()
	key := SubjectKey("alice")

	for i := 0; i < 2; i++ {
		if err := l.Check(ctx, key); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i, err)
		}
		if err := l.Fail(ctx, key); err != nil {
			t.Fatalf("fail: %v", err)
		}
	}
	if err := l.Check(ctx, key); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, SubjectKey("bob")); err != nil {
		t.Fatalf("other subjects must not be limited: %v", err)
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	l, mr := newLimiter(t, 1)
	ctx := context.Background()
	key := RemoteKey(7)

	if err := l.Fail(ctx, key); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if ttl := mr.TTL("gs:throttle:r:7"); ttl != time.Minute {
		t.Fatalf("expected window ttl 1m, got %v", ttl)
	}
	if err := l.Check(ctx, key); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.Check(ctx, key); err != nil {
		t.Fatalf("expired window must allow again: %v", err)
	}
}

func TestLimiterReset(t *testing.T) {
	l, _ := newLimiter(t, 1)
	ctx := context.Background()
	keys := []string{SubjectKey("alice"), RemoteKey(9)}

	if err := l.Fail(ctx, keys...); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if n, _ := l.Failures(ctx, keys[1]); n != 1 {
		t.Fatalf("expected 1 failure, got %d", n)
	}
	if err := l.Reset(ctx, keys...); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Check(ctx, keys...); err != nil {
		t.Fatalf("reset must clear the budget: %v", err)
	}
}

func TestLimiterRedisUnavailable(t *testing.T) {
	l, mr := newLimiter(t, 1)
	mr.Close()

	if err := l.Check(context.Background(), SubjectKey("alice")); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
