// Package lock keeps two pipeline runs from overlapping.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
)

// ErrRunInProgress is returned when another run holds the lock.
var ErrRunInProgress = errors.New("another enrichment run is in progress")

// Release gives the lock back.
type Release func(ctx context.Context) error

// Locker grants an exclusive lease on a named run.
type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
}

// releaseScript deletes the key only while it still carries our token, so an
// expired lease never frees a lock taken over by another run.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX and a TTL.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLocker creates a Locker over client. Leases expire after ttl so a
// crashed run cannot block the schedule forever.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, prefix: "enrichment:lock:"}
}

// NewRedisClient creates the go-redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (Release, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release lock %s: %w", name, err)
		}
		return nil
	}, nil
}

// Noop grants every lease. Used when no Redis address is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}
