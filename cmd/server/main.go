package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"chatwall/internal/auth"
	"chatwall/internal/conversation"
	"chatwall/internal/platform/config"
	"chatwall/internal/platform/httpserver"
	"chatwall/internal/platform/logger"
	"chatwall/internal/platform/metrics"
	platformredis "chatwall/internal/platform/redis"
	"chatwall/internal/realtime"
	transporthttp "chatwall/internal/transport/http"
	"chatwall/internal/token"
	"chatwall/internal/user"
	"chatwall/internal/wall"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		userStore user.Store
		convStore conversation.Store
		wallStore wall.Store
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		userStore = user.NewPostgresStore(pool)
		convStore = conversation.NewPostgresStore(pool)
		wallStore = wall.NewPostgresStore(pool)
		log.Info("using postgres stores")
	} else {
		userStore = user.NewInMemoryStore()
		convStore = conversation.NewInMemoryStore()
		wallStore = wall.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	userSvc := user.NewService(userStore, log)
	convSvc := conversation.NewService(convStore, userSvc, log)
	wallSvc := wall.NewService(wallStore, userSvc, log)
	tokenSvc := token.NewJWTService(cfg.JWTSigningKey, "chatwall")

	// Realtime core. The participant cache is Redis-backed when configured
	// so multiple gateway processes agree on access.
	registry := realtime.NewRegistry()
	var cache realtime.Authorizer
	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	var localCache *realtime.AccessCache
	if rdb != nil {
		defer rdb.Close()
		cache = realtime.NewRedisAccessCache(rdb.Client, convSvc, cfg.AccessCacheTTL, log, m)
		log.Info("using redis participant cache")
	} else {
		localCache = realtime.NewAccessCache(convSvc, cfg.AccessCacheTTL, log, m)
		cache = localCache
	}

	verifier := realtime.NewIdentityVerifier(tokenSvc, userSvc)
	gateway := realtime.NewGateway(registry, cache, verifier, wallSvc, cfg.FrontendOrigin, log, m)

	google := auth.NewGoogleClient(cfg.Google)
	authHandler := auth.NewHandler(google, userSvc, tokenSvc, log, cfg.FrontendOrigin, cfg.TokenTTL, cfg.Production)

	router := transporthttp.NewRouter(transporthttp.Deps{
		Auth:           authHandler,
		Users:          user.NewHandler(userSvc, log, tokenSvc),
		Conversations:  conversation.NewHandler(convSvc, log, tokenSvc),
		Wall:           wall.NewHandler(wallSvc, log, tokenSvc),
		Gateway:        gateway,
		FrontendOrigin: cfg.FrontendOrigin,
		Logger:         log,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if localCache != nil {
		g.Go(func() error {
			localCache.Sweep(gctx, cfg.AccessCacheSweepInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
