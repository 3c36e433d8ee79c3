package rbac

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls atomic.Int32
	set   ClaimSet
	delay time.Duration
}

func (s *countingSource) ClaimsForRoles(ctx context.Context, roleIDs []uuid.UUID) (ClaimSet, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.set.Clone(), nil
}

func newTestCache(t *testing.T, src ClaimSource) (*ClaimCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewClaimCache(client, src, time.Minute, nil), mr
}

func TestClaimCacheHitAndInvalidate(t *testing.T) {
	src := &countingSource{set: NewClaimSet(map[string][]string{"read": {"items"}})}
	cache, _ := newTestCache(t, src)
	ctx := context.Background()
	roles := []uuid.UUID{uuid.New(), uuid.New()}

	first, err := cache.ClaimsForRoles(ctx, roles)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:items"}, first.Strings())

	second, err := cache.ClaimsForRoles(ctx, []uuid.UUID{roles[1], roles[0]})
	require.NoError(t, err)
	assert.Equal(t, first.Strings(), second.Strings())
	assert.Equal(t, int32(1), src.calls.Load())

	require.NoError(t, cache.Invalidate(ctx))
	src.set = NewClaimSet(map[string][]string{"read": {"items"}, "write": {"items"}})

	third, err := cache.ClaimsForRoles(ctx, roles)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:items", "write:items"}, third.Strings())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestClaimCacheEmptyRoles(t *testing.T) {
	src := &countingSource{set: make(ClaimSet)}
	cache, _ := newTestCache(t, src)
	set, err := cache.ClaimsForRoles(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.Zero(t, src.calls.Load())
}

func TestClaimCacheFallsBackWhenRedisDown(t *testing.T) {
	src := &countingSource{set: NewClaimSet(map[string][]string{"read": {"items"}})}
	cache, mr := newTestCache(t, src)
	mr.Close()

	set, err := cache.ClaimsForRoles(context.Background(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.True(t, set.Has(Claim{Type: "read", Value: "items"}))
	assert.Error(t, cache.Invalidate(context.Background()))
}

func TestClaimCachePassThroughWithoutClient(t *testing.T) {
	src := &countingSource{set: NewClaimSet(map[string][]string{"read": {"items"}})}
	cache := NewClaimCache(nil, src, time.Minute, nil)
	for i := 0; i < 3; i++ {
		_, err := cache.ClaimsForRoles(context.Background(), []uuid.UUID{uuid.New()})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), src.calls.Load())
	assert.NoError(t, cache.Invalidate(context.Background()))
}

func TestClaimCacheCollapsesConcurrentMisses(t *testing.T) {
	src := &countingSource{set: NewClaimSet(map[string][]string{"read": {"items"}}), delay: 50 * time.Millisecond}
	cache, _ := newTestCache(t, src)
	roles := []uuid.UUID{uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := cache.ClaimsForRoles(context.Background(), roles)
			assert.NoError(t, err)
			assert.Equal(t, 1, set.Len())
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, src.calls.Load(), int32(2))
}
