package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockTimeout is returned when the attempt lock could not be taken in time.
var ErrLockTimeout = errors.New("timed out waiting for attempt lock")

// Locker serializes attempt lookup-or-create across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NopLocker never blocks. Suitable for single-process deployments.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX lock with a TTL. Release only deletes the key while it still
// holds this caller's token.
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
	log   zerolog.Logger
}

// NewRedisLocker creates a RedisLocker whose locks expire after ttl.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		rdb:   rdb,
		ttl:   ttl,
		retry: 50 * time.Millisecond,
		log:   log.With().Str("component", "attempt_locker").Logger(),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// release deletes the lock if it is still ours. A failed release is not fatal:
// the key expires after the TTL, which only delays the next mount.
func (l *RedisLocker) release(key, token string) {
	deleted, err := releaseScript.Run(context.Background(), l.rdb, []string{key}, token).Int()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Dur("expires_in", l.ttl).Msg("Failed to release attempt lock")
		return
	}
	if deleted == 0 {
		l.log.Warn().Str("key", key).Msg("Attempt lock expired before release")
	}
}
