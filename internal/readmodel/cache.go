package readmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relay/internal/relay"
)

// Cache wraps a relay.ReadModel with Redis-backed caching for snapshot reads.
// A nil client disables caching and passes every lookup through.
type Cache struct {
	base  relay.ReadModel
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching read-model wrapper using the provided Redis
// client and TTL.
func NewCache(base relay.ReadModel, client *redis.Client, ttl time.Duration) *Cache {
	if ttl < 0 {
		ttl = 0
	}

	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
}

// GetEventByID implements relay.ReadModel.GetEventByID. Absent snapshots are
// never cached; a stale "missing" entry would suppress enrichment long after
// the event appears in the read model.
func (c *Cache) GetEventByID(ctx context.Context, eventID int64) (*relay.EventSnapshot, error) {
	if snap, ok := c.loadFromCache(ctx, eventID); ok {
		return snap, nil
	}

	snap, err := c.base.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if snap != nil {
		c.store(ctx, eventID, snap)
	}
	return snap, nil
}

// Evict drops the cached snapshot for an event. Publishers call this when an
// event changes so the next enrichment sees fresh data.
func (c *Cache) Evict(ctx context.Context, eventID int64) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, snapshotCacheKey(eventID)).Err()
}

func (c *Cache) loadFromCache(ctx context.Context, eventID int64) (*relay.EventSnapshot, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, snapshotCacheKey(eventID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the read model without failing.
			_ = c.redis.Del(ctx, snapshotCacheKey(eventID)).Err()
		}
		return nil, false
	}
	var snap relay.EventSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		_ = c.redis.Del(ctx, snapshotCacheKey(eventID)).Err()
		return nil, false
	}
	return &snap, true
}

func (c *Cache) store(ctx context.Context, eventID int64, snap *relay.EventSnapshot) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, snapshotCacheKey(eventID), data, c.ttl).Err()
}

func snapshotCacheKey(eventID int64) string {
	return fmt.Sprintf("snapshot:event:%d", eventID)
}
