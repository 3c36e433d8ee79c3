package main

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockroom/stockroom/internal/app"
	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/rbac"
)

// authz bundles the authorization core shared by the server and the CLI.
type authz struct {
	repo      *rbac.PGRepository
	cache     *rbac.ClaimCache
	codec     *auth.Codec
	service   *auth.Service
	evaluator *rbac.Evaluator
	guard     *rbac.Guard
}

// newAuthz wires storage, claim sources and the token codec. Token issuance
// reads claims straight from storage; live evaluation goes through the cache.
// redisClient and metrics may be nil.
func newAuthz(cfg *app.Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) (*authz, error) {
	codec, err := auth.NewCodec(cfg.TokenConfig())
	if err != nil {
		return nil, err
	}

	repo := rbac.NewRepository(pool)
	resolver := rbac.NewRoleResolver(repo)
	store := rbac.NewClaimStore(repo)
	cache := rbac.NewClaimCache(redisClient, store, cfg.ClaimCacheTTL, logger)

	issuing := rbac.NewPrincipalLoader(repo, resolver, store)
	live := rbac.NewPrincipalLoader(repo, resolver, cache)

	service := auth.NewService(auth.NewRepository(pool), issuing, codec)

	opts := []rbac.GuardOption{rbac.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, rbac.WithDecisionRecorder(metrics))
	}

	return &authz{
		repo:      repo,
		cache:     cache,
		codec:     codec,
		service:   service,
		evaluator: rbac.NewEvaluator(live),
		guard:     rbac.NewGuard(service, opts...),
	}, nil
}
