package readmodel

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"relay/internal/relay"
)

type stubReadModel struct {
	getEventFn func(ctx context.Context, eventID int64) (*relay.EventSnapshot, error)
	calls      int
}

func (s *stubReadModel) GetEventByID(ctx context.Context, eventID int64) (*relay.EventSnapshot, error) {
	s.calls++
	if s.getEventFn == nil {
		return nil, errors.New("unexpected GetEventByID call")
	}
	return s.getEventFn(ctx, eventID)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestCacheMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	expected := &relay.EventSnapshot{ID: 5, CampusID: 3, OrganizerID: 7, Title: "Career Fair"}
	base := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		require.Equal(t, int64(5), id)
		return expected, nil
	}}

	cache := NewCache(base, client, time.Minute)

	snap, err := cache.GetEventByID(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, expected.Title, snap.Title)
	require.Equal(t, 1, base.calls)

	ttl := mr.TTL(snapshotCacheKey(5))
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, time.Minute)

	cached, err := cache.GetEventByID(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, expected.ID, cached.ID)
	require.Equal(t, 1, base.calls, "cached read must not hit the gateway")
}

func TestCacheDoesNotCacheAbsentSnapshots(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	base := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return nil, nil
	}}

	cache := NewCache(base, client, time.Minute)

	snap, err := cache.GetEventByID(ctx, 5)
	require.NoError(t, err)
	require.Nil(t, snap)
	require.False(t, mr.Exists(snapshotCacheKey(5)))

	_, err = cache.GetEventByID(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 2, base.calls)
}

func TestCachePropagatesGatewayErrors(t *testing.T) {
	_, client := newTestRedis(t)

	base := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return nil, errors.New("read model down")
	}}

	cache := NewCache(base, client, time.Minute)

	_, err := cache.GetEventByID(context.Background(), 5)
	require.Error(t, err)
}

func TestCacheEvict(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	base := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return &relay.EventSnapshot{ID: id}, nil
	}}

	cache := NewCache(base, client, time.Minute)

	_, err := cache.GetEventByID(ctx, 5)
	require.NoError(t, err)
	require.True(t, mr.Exists(snapshotCacheKey(5)))

	cache.Evict(ctx, 5)
	require.False(t, mr.Exists(snapshotCacheKey(5)))
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	base := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return &relay.EventSnapshot{ID: id}, nil
	}}

	cache := NewCache(base, nil, time.Minute)

	snap, err := cache.GetEventByID(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), snap.ID)

	_, err = cache.GetEventByID(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 2, base.calls)
}

func TestCacheRecoversFromCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(snapshotCacheKey(5), "not json"))

	base := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return &relay.EventSnapshot{ID: id}, nil
	}}

	cache := NewCache(base, client, time.Minute)

	snap, err := cache.GetEventByID(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), snap.ID)
	require.Equal(t, 1, base.calls)
}
