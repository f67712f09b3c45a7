package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

const (
	defaultTTL     = 30 * time.Second
	defaultWait    = 5 * time.Second
	defaultPoll    = 25 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker grants exclusive access to a key.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
}

// RedisLocker implements Locker with Redis SETNX + TTL, polling until the
// configured wait elapses. Release only deletes the key while the caller
// still owns it.
type RedisLocker struct {
	store redisStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(store redisStore, ttl, wait time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required for locker")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if wait <= 0 {
		wait = defaultWait
	}
	return &RedisLocker{store: store, ttl: ttl, wait: wait, poll: defaultPoll}, nil
}

// Lock blocks until the key is acquired, the wait elapses or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.store.AcquireLock(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire lock")
		}
		if ok {
			return l.unlocker(key, owner), nil
		}
		if time.Now().After(deadline) {
			return nil, busyError()
		}
		if err := sleep(ctx, l.poll); err != nil {
			return nil, err
		}
	}
}

func (l *RedisLocker) unlocker(key, owner string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_, _ = l.store.ReleaseLock(ctx, key, owner)
		})
	}
}

// LocalLocker is an in-process keyed mutex used when Redis is not configured.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	wait    time.Duration
}

type localEntry struct {
	slot chan struct{}
	refs int
}

// NewLocalLocker builds an in-process locker. A non-positive wait falls back to the default.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = defaultWait
	}
	return &LocalLocker{entries: make(map[string]*localEntry), wait: wait}
}

// Lock blocks until the key is free, the wait elapses or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	entry := l.ref(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case entry.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.slot
				l.unref(key)
			})
		}, nil
	case <-timer.C:
		l.unref(key)
		return nil, busyError()
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, key)
	}
}

func busyError() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "resource is locked by another operation; retry")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
