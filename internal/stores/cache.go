package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrSnapshotMiss is a cache miss.
	ErrSnapshotMiss = errors.New("user snapshot not cached")
	// ErrCacheUnavailable wraps Redis transport failures.
	ErrCacheUnavailable = errors.New("snapshot cache unavailable")
)

// Snapshot is the cached, secret-free projection of a user record.
// It never carries password hashes or token material.
type Snapshot struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// SnapshotCache is the TTL-bounded response cache keyed by user id. It
// must be invalidated on every mutation to the user or their sessions.
type SnapshotCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSnapshotCache creates a [SnapshotCache]. A non-positive ttl
// disables expiry bounds and is rejected by Config validation upstream.
func NewSnapshotCache(client redis.UniversalClient, prefix string, ttl time.Duration) *SnapshotCache {
	if prefix == "" {
		prefix = "qc"
	}
	return &SnapshotCache{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *SnapshotCache) key(userID string) string {
	return c.prefix + ":" + userID
}

// Get returns the cached snapshot or [ErrSnapshotMiss].
func (c *SnapshotCache) Get(ctx context.Context, userID string) (*Snapshot, error) {
	data, err := c.redis.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Poisoned entry; drop it and report a miss.
		_ = c.redis.Del(ctx, c.key(userID)).Err()
		return nil, ErrSnapshotMiss
	}

	return &snap, nil
}

// Put stores a snapshot under the configured TTL.
func (c *SnapshotCache) Put(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(snap.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Invalidate drops the cached snapshot for a user.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.redis.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
