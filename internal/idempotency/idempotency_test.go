package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/seat-reservations/internal/adapters/redis"
	"github.com/robertarktes/seat-reservations/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]redisadapter.IdempResponse
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string]redisadapter.IdempResponse{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (*redisadapter.IdempResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (m *memStore) Claim(_ context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = resp
	m.ttls[key] = ttl
	return true, nil
}

func (m *memStore) Put(_ context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = resp
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestIdempotency_ClaimCompleteReplay(t *testing.T) {
	store := newMemStore()
	idemp := idempotency.NewIdempotency(store, time.Hour)
	ctx := context.Background()

	replay, claimed, err := idemp.Begin(ctx, "abc", "fp")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, replay)

	_, claimed, err = idemp.Begin(ctx, "abc", "fp")
	assert.True(t, errors.Is(err, idempotency.ErrInProgress))
	assert.False(t, claimed)

	require.NoError(t, idemp.Complete(ctx, "abc", "fp", idempotency.Response{Status: 200, Result: []byte("first")}))
	assert.Equal(t, time.Hour, store.ttls["abc"])

	replay, claimed, err = idemp.Begin(ctx, "abc", "fp")
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, replay)
	assert.Equal(t, 200, replay.Status)
	assert.Equal(t, "first", string(replay.Result))
}

func TestIdempotency_KeyReusedForDifferentRequest(t *testing.T) {
	idemp := idempotency.NewIdempotency(newMemStore(), time.Hour)
	ctx := context.Background()

	_, claimed, err := idemp.Begin(ctx, "abc", "fp-1")
	require.NoError(t, err)
	require.True(t, claimed)

	_, _, err = idemp.Begin(ctx, "abc", "fp-2")
	assert.True(t, errors.Is(err, idempotency.ErrKeyReused))

	require.NoError(t, idemp.Complete(ctx, "abc", "fp-1", idempotency.Response{Status: 200}))
	_, _, err = idemp.Begin(ctx, "abc", "fp-2")
	assert.True(t, errors.Is(err, idempotency.ErrKeyReused))
}

func TestIdempotency_AbandonReleasesKey(t *testing.T) {
	idemp := idempotency.NewIdempotency(newMemStore(), time.Hour)
	ctx := context.Background()

	_, claimed, err := idemp.Begin(ctx, "abc", "fp")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, idemp.Abandon(ctx, "abc"))

	_, claimed, err = idemp.Begin(ctx, "abc", "fp")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdempotency_ConcurrentBeginClaimsOnce(t *testing.T) {
	idemp := idempotency.NewIdempotency(newMemStore(), time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, _ := idemp.Begin(context.Background(), "abc", "fp")
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claimed)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, idempotency.Fingerprint("a", "b"), idempotency.Fingerprint("a", "b"))
	assert.NotEqual(t, idempotency.Fingerprint("ab", ""), idempotency.Fingerprint("a", "b"))
}
