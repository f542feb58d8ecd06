package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/proteamcare/access-engine/internal/app"
	"github.com/proteamcare/access-engine/internal/audit"
	audithttp "github.com/proteamcare/access-engine/internal/audit/http"
	"github.com/proteamcare/access-engine/internal/authz"
	authzhttp "github.com/proteamcare/access-engine/internal/authz/http"
	isolationhttp "github.com/proteamcare/access-engine/internal/isolation/http"
	"github.com/proteamcare/access-engine/internal/menu"
	"github.com/proteamcare/access-engine/internal/observability"
	"github.com/proteamcare/access-engine/internal/platform/cache"
	"github.com/proteamcare/access-engine/internal/platform/db"
	"github.com/proteamcare/access-engine/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	permCache, err := authz.NewCache(redisClient, cfg.PermissionCacheTTL, logger)
	if err != nil {
		logger.Error("permission cache", slog.Any("error", err))
		os.Exit(1)
	}
	permCache.ListenForInvalidation(ctx)

	store := authz.NewPGStore(dbpool, cfg.StoreTimeout)
	resolver := authz.NewResolver(store, permCache, logger, metrics)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(dbpool)
	recorder := audit.NewRecorder(auditRepo, jobsClient, logger)
	reader := audit.NewReader(auditRepo)

	menuRepo := menu.NewRepository(dbpool)
	catalog, err := menu.NewCachedCatalog(menuRepo, cfg.MenuCatalogTTL)
	if err != nil {
		logger.Error("menu catalog cache", slog.Any("error", err))
		os.Exit(1)
	}
	menuService := menu.NewService(resolver, catalog, recorder, cfg.DevMenusEnabled, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ServiceAuth:      app.NewServiceAuth(cfg.ServiceTokenHash, logger),
		AuthzHandler:     authzhttp.NewHandler(logger, resolver, permCache, recorder),
		MenuHandler:      menu.NewHandler(logger, menuService),
		IsolationHandler: isolationhttp.NewHandler(logger, resolver, recorder),
		AuditHandler:     audithttp.NewHandler(logger, reader),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
