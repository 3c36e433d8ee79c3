package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	claimCacheVersionKey = "rbac:claims:version"
	claimCachePrefix     = "rbac:claims"
)

// ClaimCache wraps a claim source with a versioned Redis cache. Bumping the
// version through Invalidate orphans every cached set at once.
type ClaimCache struct {
	client *redis.Client
	source ClaimSource
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewClaimCache instantiates the cache. A nil client makes it a pass-through.
func NewClaimCache(client *redis.Client, source ClaimSource, ttl time.Duration, logger *slog.Logger) *ClaimCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaimCache{client: client, source: source, ttl: ttl, logger: logger}
}

// ClaimsForRoles serves the claim set from Redis, loading it from the source on a miss.
func (c *ClaimCache) ClaimsForRoles(ctx context.Context, roleIDs []uuid.UUID) (ClaimSet, error) {
	if len(roleIDs) == 0 {
		return make(ClaimSet), nil
	}
	if c.client == nil {
		return c.source.ClaimsForRoles(ctx, roleIDs)
	}
	key, err := c.key(ctx, roleIDs)
	if err != nil {
		c.logger.WarnContext(ctx, "rbac claim cache version", slog.Any("error", err))
		return c.source.ClaimsForRoles(ctx, roleIDs)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var byType map[string][]string
		if err := json.Unmarshal(raw, &byType); err == nil {
			return NewClaimSet(byType), nil
		}
		c.logger.WarnContext(ctx, "rbac claim cache decode", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "rbac claim cache get", slog.Any("error", err))
		return c.source.ClaimsForRoles(ctx, roleIDs)
	}
	return c.fill(ctx, key, roleIDs)
}

func (c *ClaimCache) fill(ctx context.Context, key string, roleIDs []uuid.UUID) (ClaimSet, error) {
	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		set, err := c.source.ClaimsForRoles(ctx, roleIDs)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(set.Map())
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "rbac claim cache set", slog.Any("error", err))
		}
		return set, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(ClaimSet).Clone(), nil
	}
}

// Invalidate bumps the cache version.
func (c *ClaimCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, claimCacheVersionKey).Err(); err != nil {
		return fmt.Errorf("rbac: invalidate claim cache: %w", err)
	}
	return nil
}

func (c *ClaimCache) key(ctx context.Context, roleIDs []uuid.UUID) (string, error) {
	ver, err := c.client.Get(ctx, claimCacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	ids := make([]string, len(roleIDs))
	for i, id := range roleIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return fmt.Sprintf("%s:%d:%s", claimCachePrefix, ver, strings.Join(ids, ",")), nil
}

var _ ClaimSource = (*ClaimCache)(nil)
