package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*FixedWindow, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewFixedWindow(rdb, "ql", cfg), mr
}

func TestAllowWithinWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Enabled: true, Max: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "alice"); err != nil {
			t.Fatalf("Allow %d failed: %v", i+1, err)
		}
	}
}

func TestExceedingMaxIsRateLimited(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Enabled: true, Max: 2, Window: time.Minute})
	ctx := context.Background()

	_ = limiter.Allow(ctx, "alice")
	_ = limiter.Allow(ctx, "alice")

	if err := limiter.Allow(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSubjectsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Enabled: true, Max: 1, Window: time.Minute})
	ctx := context.Background()

	if err := limiter.Allow(ctx, "alice"); err != nil {
		t.Fatalf("Allow alice failed: %v", err)
	}
	if err := limiter.Allow(ctx, "bob"); err != nil {
		t.Fatalf("Allow bob failed: %v", err)
	}
	if err := limiter.Allow(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected alice rate limited, got %v", err)
	}
}

func TestWindowLapses(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{Enabled: true, Max: 1, Window: time.Minute})
	ctx := context.Background()

	_ = limiter.Allow(ctx, "alice")
	if err := limiter.Allow(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)

	if err := limiter.Allow(ctx, "alice"); err != nil {
		t.Fatalf("Allow after window lapse failed: %v", err)
	}
}

func TestResetClearsWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Enabled: true, Max: 1, Window: time.Minute})
	ctx := context.Background()

	_ = limiter.Allow(ctx, "alice")
	if err := limiter.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := limiter.Allow(ctx, "alice"); err != nil {
		t.Fatalf("Allow after reset failed: %v", err)
	}
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Enabled: false, Max: 1, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := limiter.Allow(ctx, "alice"); err != nil {
			t.Fatalf("disabled Allow %d failed: %v", i+1, err)
		}
	}
}

func TestRedisDownReportsUnavailable(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{Enabled: true, Max: 1, Window: time.Minute})
	mr.Close()

	err := limiter.Allow(context.Background(), "alice")
	if !errors.Is(err, ErrLimiterUnavailable) {
		t.Fatalf("expected ErrLimiterUnavailable, got %v", err)
	}
}
