package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockerSerializes(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, "test:lock:")
	l.Retry = time.Millisecond

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "a-1")
			if err != nil {
				t.Error(err)
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	if overlap.Load() {
		t.Error("two holders inside the same lease")
	}
	if mr.Exists("test:lock:a-1") {
		t.Error("lease not released")
	}
}

func TestRedisLockerContextAndExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, "")
	l.Retry = time.Millisecond

	unlock, err := l.Lock(context.Background(), "a-1")
	if err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("checkin:lock:a-1"); ttl != l.TTL {
		t.Errorf("ttl = %s", ttl)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "a-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("held lease err = %v", err)
	}

	// The first lease lapses and another holder takes the key.
	mr.FastForward(l.TTL + time.Second)
	second, err := l.Lock(context.Background(), "a-1")
	if err != nil {
		t.Fatal(err)
	}
	unlock()
	if !mr.Exists("checkin:lock:a-1") {
		t.Fatal("stale unlock released the new holder's lease")
	}
	second()
	if mr.Exists("checkin:lock:a-1") {
		t.Error("lease not released")
	}
}

func TestRedisLockerUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()
	l := NewRedisLocker(client, "")
	if _, err := l.Lock(context.Background(), "a-1"); err == nil {
		t.Fatal("lock succeeded without redis")
	}
	if _, err := (*RedisLocker)(nil).Lock(context.Background(), "a-1"); err == nil {
		t.Fatal("nil locker")
	}
}
