package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) RevokedTokenKey(jti string) string {
	return "revoked:" + jti
}

func newTestRevocations(store *mockStore, now time.Time) *Revocations {
	return &Revocations{store: store, keyer: store, now: func() time.Time { return now }}
}

func TestRevokeDenylistsUntilExpiry(t *testing.T) {
	store := newMockStore()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	revocations := newTestRevocations(store, now)
	ctx := context.Background()

	revoked, err := revocations.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, revocations.Revoke(ctx, "jti-1", now.Add(45*time.Minute)))

	revoked, err = revocations.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
	require.Equal(t, 45*time.Minute, store.ttls["revoked:jti-1"])
}

func TestRevokeSkipsExpiredTokens(t *testing.T) {
	store := newMockStore()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	revocations := newTestRevocations(store, now)

	require.NoError(t, revocations.Revoke(context.Background(), "jti-2", now.Add(-time.Minute)))
	require.Empty(t, store.data)
}

func TestRevocationsRequireTokenID(t *testing.T) {
	revocations := newTestRevocations(newMockStore(), time.Now())
	require.Error(t, revocations.Revoke(context.Background(), " ", time.Now().Add(time.Hour)))
	_, err := revocations.IsRevoked(context.Background(), "")
	require.Error(t, err)
}
