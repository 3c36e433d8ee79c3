package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockroom/stockroom/cmd/stockroom/cli"
	"github.com/stockroom/stockroom/internal/app"
	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/platform/cache"
	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/roles"
	"github.com/stockroom/stockroom/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if args := os.Args[1:]; cli.IsCommand(args) {
		os.Exit(runCLI(ctx, cfg, logger, args))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, claim cache disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	core, err := newAuthz(cfg, dbpool, redisClient, metrics, logger)
	if err != nil {
		logger.Error("init authz", slog.Any("error", err))
		os.Exit(1)
	}
	rbacMiddleware := rbac.Middleware{Guard: core.guard, Logger: logger}

	rbacService := rbac.NewService(core.repo, core.cache, logger)
	rolesService := roles.NewService(roles.NewRepository(dbpool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, core.service, rbacMiddleware, cfg.LoginRateLimit),
		RolesHandler:       roles.NewHandler(logger, rolesService, rbacMiddleware),
		RBACHandler:        rbac.NewHandler(logger, rbacService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, core.evaluator, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runCLI(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	runner := cli.Runner{
		Tokens: func(ctx context.Context) (*cli.TokenCLI, func(), error) {
			codec, err := auth.NewCodec(cfg.TokenConfig())
			if err != nil {
				return nil, nil, err
			}
			if args[1] != "issue" {
				tokens, err := cli.NewTokenCLI(codec, nil)
				return tokens, nil, err
			}
			dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				return nil, nil, err
			}
			core, err := newAuthz(cfg, dbpool, nil, nil, logger)
			if err != nil {
				dbpool.Close()
				return nil, nil, err
			}
			tokens, err := cli.NewTokenCLI(core.codec, core.service)
			return tokens, dbpool.Close, err
		},
		Jobs: func() (*cli.JobsCLI, error) {
			return cli.NewJobsCLI(cfg.RedisAddr)
		},
	}
	return runner.Run(ctx, args)
}
