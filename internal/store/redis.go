package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a per-key lease shared by every station using the same
// Redis. A lease expires after TTL even if its holder dies.
type RedisLocker struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "checkin:lock:"
	}
	return &RedisLocker{Client: client, Prefix: prefix, TTL: 15 * time.Second, Retry: 25 * time.Millisecond}
}

// Lock blocks until the lease for key is held or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.Client == nil {
		return nil, errors.New("redis locker not configured")
	}
	name := l.Prefix + key
	token := ulid.Make().String()
	for {
		ok, err := l.Client.SetNX(ctx, name, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(name, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Retry):
		}
	}
}

// release deletes the lease only while token still owns it. A lease that
// already expired stays with whoever holds it now.
func (l *RedisLocker) release(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.Client, []string{name}, token).Int()
	switch {
	case err != nil:
		log.Printf("lock %s release failed, it expires in %s: %v", name, l.TTL, err)
	case n == 0:
		log.Printf("lock %s expired before release", name)
	}
}
