package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a fixed window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrLimiterUnavailable wraps Redis transport failures.
	ErrLimiterUnavailable = errors.New("limiter unavailable")
)

// Config holds one fixed-window policy.
type Config struct {
	Enabled bool
	Max     int64
	Window  time.Duration
}

// FixedWindow is a Redis INCR+EXPIRE counter window.
type FixedWindow struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// NewFixedWindow creates a [FixedWindow] under the given key prefix.
func NewFixedWindow(client redis.UniversalClient, prefix string, cfg Config) *FixedWindow {
	return &FixedWindow{
		redis:  client,
		prefix: prefix,
		config: cfg,
	}
}

// Allow consumes one unit of the window for subject. The first hit in a
// window arms its TTL; exceeding Max fails [ErrRateLimited] until the
// window lapses.
func (l *FixedWindow) Allow(ctx context.Context, subject string) error {
	if l == nil || !l.config.Enabled || subject == "" {
		return nil
	}

	key := l.prefix + ":" + subject
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}

	if count > l.config.Max {
		return ErrRateLimited
	}

	return nil
}

// Reset clears the window for subject; used after a successful login so
// earlier failures stop counting against the user.
func (l *FixedWindow) Reset(ctx context.Context, subject string) error {
	if l == nil || !l.config.Enabled || subject == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.prefix+":"+subject).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}
