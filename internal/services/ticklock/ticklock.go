// Package ticklock keeps two service instances from running the same
// periodic tick at the same time.
//
// Row-level guards in the database already make concurrent ticks safe; the
// lock just avoids the wasted external calls. Without Redis the lock is local
// to the process.
package ticklock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker acquires named, expiring locks.
type Locker interface {
	// Acquire returns a release func and true when the lock was taken.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis connects to the Redis at url (redis://host:port/db).
func NewRedis(url string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &RedisLocker{rdb: redis.NewClient(opts), prefix: "autoshorts:tick:"}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "autoshorts:tick:"}
}

// Ping checks the connection.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Release must work even if the tick's context already expired.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}

// LocalLocker implements Locker inside a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocal creates an in-process locker.
func NewLocal() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

func (l *LocalLocker) Acquire(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if until, ok := l.held[name]; ok && now.Before(until) {
		return nil, false, nil
	}
	expiry := now.Add(ttl)
	l.held[name] = expiry

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[name].Equal(expiry) {
			delete(l.held, name)
		}
	}
	return release, true, nil
}
