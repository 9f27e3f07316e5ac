// Package lock provides mutual exclusion scoped to a string key.
//
// Ingestion holds the lock for a canonical URL across its read-merge-write so
// two reports for the same page cannot both create a record. KeyedMutex covers
// a single process; RedisLocker extends the scope across processes sharing a
// Redis instance.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker acquires the lock for key, blocking until it is held or ctx is done.
// The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped once no goroutine
// holds or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, e *keyedEntry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// Len reports how many keys are currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

const keyPrefix = "linker:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker backed by SET NX with an expiry. A holder that
// outlives ttl loses the lock; release then leaves the new holder untouched.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	onLost func(key string)
}

func NewRedisLocker(client *redis.Client, ttl, retry time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retry: retry}
}

// OnLost registers a callback run when a release finds the lock already gone.
func (l *RedisLocker) OnLost(fn func(key string)) {
	l.onLost = fn
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even if the caller's context was cancelled meanwhile.
			released, err := releaseScript.Run(context.Background(), l.client, []string{redisKey}, token).Int()
			if (err != nil || released == 0) && l.onLost != nil {
				l.onLost(key)
			}
		})
	}, nil
}
