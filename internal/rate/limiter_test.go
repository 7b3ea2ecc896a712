package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, cfg), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestLoginThrottleTripsAndResets(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.IncrementLogin(ctx, "alice", ""); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := l.IncrementLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on 4th failure, got %v", err)
	}
	if err := l.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected CheckLogin to trip, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob", ""); err != nil {
		t.Fatalf("other identity must be unaffected: %v", err)
	}

	if err := l.ResetLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, err := l.GetLoginAttempts(ctx, "alice")
	if err != nil || n != 0 {
		t.Fatalf("expected counter cleared, got %d %v", n, err)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	defer done()
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "alice", "")
	_ = l.IncrementLogin(ctx, "alice", "")
	if err := l.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected throttle, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected window to lapse, got %v", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      2,
		RefreshCooldownDuration: time.Minute,
	})
	defer done()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckRefresh(ctx, "42"); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}
	if err := l.CheckRefresh(ctx, "42"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRefreshThrottleDisabled(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{MaxRefreshAttempts: 1})
	defer done()

	for i := 0; i < 5; i++ {
		if err := l.CheckRefresh(context.Background(), "42"); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}
}

func TestRedisDownIsWrapped(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	defer done()
	mr.Close()

	if err := l.CheckLogin(context.Background(), "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
