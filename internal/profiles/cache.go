package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DoctorCacheTTL bounds how long a doctor card is served from Redis.
const DoctorCacheTTL = 5 * time.Minute

// DoctorCache stores public doctor cards in Redis. A nil cache is a no-op.
type DoctorCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewDoctorCache(redisClient *redis.Client) *DoctorCache {
	if redisClient == nil {
		return nil
	}
	return &DoctorCache{redis: redisClient, ttl: DoctorCacheTTL}
}

func (c *DoctorCache) key(id uuid.UUID) string {
	return fmt.Sprintf("doctor:card:%s", id)
}

// Get returns (nil, nil) on a miss.
func (c *DoctorCache) Get(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	if c == nil {
		return nil, nil
	}
	data, err := c.redis.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profiles: cache get: %w", err)
	}
	var d DoctorProfile
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("profiles: cache decode: %w", err)
	}
	return &d, nil
}

func (c *DoctorCache) Set(ctx context.Context, d *DoctorProfile) error {
	if c == nil || d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("profiles: cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, c.key(d.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("profiles: cache set: %w", err)
	}
	return nil
}

func (c *DoctorCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c == nil {
		return nil
	}
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("profiles: cache invalidate: %w", err)
	}
	return nil
}
