package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/foodfund-backend/pkg/redis"
)

const scopePrefix = "evt:claim"

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
)

// Manager hands out per-consumer claims on event IDs. A claim is a Redis key
// written with SETNX, so only the first delivery of an event wins it.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	owner string
	now   func() time.Time
}

type Option func(*Manager)

// WithOwner stamps claim markers with the worker that took them.
func WithOwner(owner string) Option {
	return func(m *Manager) {
		m.owner = strings.TrimSpace(owner)
	}
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	m := &Manager{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Claim reports whether the caller now owns eventID for consumer. False means
// another delivery already claimed it and the event must be skipped.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, m.marker(), m.ttl)
}

// Release drops a claim so a redelivery can process the event again.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Holder returns the marker stored for a claim, or "" when unclaimed.
func (m *Manager) Holder(ctx context.Context, consumer string, eventID uuid.UUID) (string, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return "", err
	}
	holder, err := m.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return holder, err
}

func (m *Manager) marker() string {
	stamp := m.now().UTC().Format(time.RFC3339)
	if m.owner == "" {
		return stamp
	}
	return m.owner + "@" + stamp
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case consumer == "":
		return "", ErrConsumerRequired
	case eventID == uuid.Nil:
		return "", ErrEventIDRequired
	}
	return m.store.IdempotencyKey(scopePrefix+":"+consumer, eventID.String()), nil
}
