package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dis3z/reserve-api/infras/otel/mocks"
	"github.com/Dis3z/reserve-api/shared/cache"
)

type snapshot struct {
	ID                string `json:"id"`
	RemainingCapacity int    `json:"remaining_capacity"`
}

func newTestCache(t *testing.T) (cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goRedis.NewClient(&goRedis.Options{Addr: mr.Addr()})

	return cache.NewRedisCache(client, mocks.NewOtel()), mr
}

func TestRedisCache_SaveGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	saved := []snapshot{{ID: "slot-1", RemainingCapacity: 3}, {ID: "slot-2", RemainingCapacity: 1}}
	require.NoError(t, c.Save(ctx, "slots:available:v1:2026-08-06", saved, 60))

	var loaded []snapshot
	require.NoError(t, c.Get(ctx, "slots:available:v1:2026-08-06", &loaded))
	assert.Equal(t, saved, loaded)
}

func TestRedisCache_GetMiss(t *testing.T) {
	c, _ := newTestCache(t)

	var loaded []snapshot
	err := c.Get(context.Background(), "slots:available:v1:2026-08-06", &loaded)
	assert.Error(t, err)
}

func TestRedisCache_Delete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "slots:available:v1:2026-08-06", []snapshot{{ID: "slot-1"}}, 60))
	require.NoError(t, c.Delete(ctx, "slots:available:v1:2026-08-06"))

	var loaded []snapshot
	assert.Error(t, c.Get(ctx, "slots:available:v1:2026-08-06", &loaded))
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "slots:available:v1:2026-08-06", []snapshot{{ID: "slot-1"}}, 60))

	mr.FastForward(61 * time.Second)

	var loaded []snapshot
	assert.Error(t, c.Get(ctx, "slots:available:v1:2026-08-06", &loaded))
}
