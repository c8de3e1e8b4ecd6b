package lock

//go:generate go run go.uber.org/mock/mockgen -source=./lock.go -destination=./mocks/lock_mock.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Dis3z/reserve-api/infras/otel"
	"github.com/Dis3z/reserve-api/shared/constant"
)

const (
	otelLockKeyAttribute = "lock.key"
)

// releaseScript deletes the key only while it still holds our lease token.
// A plain DEL would let a holder whose lease expired clobber the next
// holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// DistributedLock is a TTL-bounded mutual exclusion keyed by an arbitrary
// string, backed by a shared key-value store.
type DistributedLock interface {
	// Acquire attempts a non-blocking acquisition. On success it returns the
	// lease token required to release. ok=false means the key is held by
	// someone else or the backing store is unreachable.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool)

	// Release frees the lock iff the lease token still matches. A false
	// return means the lease expired or was stolen; the caller must not
	// assume any lock-protected state stayed intact.
	Release(ctx context.Context, key, token string) bool
}

type redisLock struct {
	client *redis.Client
	otel   otel.Otel
}

func NewRedisLock(client *redis.Client, ot otel.Otel) DistributedLock {
	return &redisLock{
		client: client,
		otel:   ot,
	}
}

// Acquire implements DistributedLock.
func (l *redisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	ctx, scope := l.otel.NewScope(ctx, constant.OtelLockScopeName, constant.OtelLockScopeName+".Acquire")
	defer scope.End()

	scope.SetAttribute(otelLockKeyAttribute, key)

	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		// Fail closed: refusing the attempt is always safer than letting two
		// holders in.
		scope.TraceError(err)
		log.Error().Err(err).Str("key", key).Msg("failed to acquire lock, failing closed")

		return constant.Empty, false
	}

	return token, acquired
}

// Release implements DistributedLock.
func (l *redisLock) Release(ctx context.Context, key, token string) bool {
	ctx, scope := l.otel.NewScope(ctx, constant.OtelLockScopeName, constant.OtelLockScopeName+".Release")
	defer scope.End()

	scope.SetAttribute(otelLockKeyAttribute, key)

	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("key", key).Msg("failed to release lock")

		return false
	}

	if deleted == 0 {
		log.Warn().Str("key", key).Msg("lock lease expired or was stolen before release")

		return false
	}

	return true
}
