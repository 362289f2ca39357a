package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shifahealth/platform/pkg/logging"
)

// CachedRepository is a read-through Redis cache over a Repository. The
// membership list is fetched once per session and served from cache until it
// expires or a mutation invalidates it. Cache failures degrade to the inner
// repository; they never fail a read.
type CachedRepository struct {
	inner  Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedRepository wraps inner with a Redis cache.
func NewCachedRepository(inner Repository, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRepository{inner: inner, redis: redisClient, ttl: ttl, logger: logger}
}

func (c *CachedRepository) key(userID string) string {
	return fmt.Sprintf("memberships:user:%s", userID)
}

// ListForUser serves the membership list from cache, falling back to the
// inner repository on a miss.
func (c *CachedRepository) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, c.key(userID)).Result()
		if err == nil {
			var memberships []Membership
			if err := json.Unmarshal([]byte(raw), &memberships); err == nil {
				return memberships, nil
			}
			c.logger.Warn("membership cache entry corrupt, refetching", "user_id", userID)
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("membership cache read failed", "user_id", userID, "error", err)
		}
	}

	memberships, err := c.inner.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		if data, err := json.Marshal(memberships); err == nil {
			if err := c.redis.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
				c.logger.Warn("membership cache write failed", "user_id", userID, "error", err)
			}
		}
	}
	return memberships, nil
}

// ListForClinic bypasses the cache: the cache is keyed by user because
// that is the shape guard decisions read; admin listings are rare.
func (c *CachedRepository) ListForClinic(ctx context.Context, clinicID string) ([]Membership, error) {
	return c.inner.ListForClinic(ctx, clinicID)
}

// Get bypasses the cache: point lookups back authorization decisions and
// must see revocations immediately.
func (c *CachedRepository) Get(ctx context.Context, userID, clinicID string) (*Membership, error) {
	return c.inner.Get(ctx, userID, clinicID)
}

// Grant delegates and invalidates the user's cached list.
func (c *CachedRepository) Grant(ctx context.Context, m *Membership) error {
	if err := c.inner.Grant(ctx, m); err != nil {
		return err
	}
	c.Invalidate(ctx, m.UserID)
	return nil
}

// Revoke delegates and invalidates the user's cached list.
func (c *CachedRepository) Revoke(ctx context.Context, userID, clinicID string) error {
	if err := c.inner.Revoke(ctx, userID, clinicID); err != nil {
		return err
	}
	c.Invalidate(ctx, userID)
	return nil
}

// ChangeRole delegates and invalidates the user's cached list.
func (c *CachedRepository) ChangeRole(ctx context.Context, userID, clinicID, role string) error {
	if err := c.inner.ChangeRole(ctx, userID, clinicID, role); err != nil {
		return err
	}
	c.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached membership list for a user. Called on every
// mutation and on clinic switches so dependent state is rebuilt against the
// newly active clinic.
func (c *CachedRepository) Invalidate(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(userID)).Err(); err != nil {
		c.logger.Warn("membership cache invalidation failed", "user_id", userID, "error", err)
	}
}
