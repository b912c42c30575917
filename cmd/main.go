package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	api "github.com/galasfoundry/mooch-auth/internal/api/http"
	"github.com/galasfoundry/mooch-auth/internal/cache"
	"github.com/galasfoundry/mooch-auth/internal/config"
	"github.com/galasfoundry/mooch-auth/internal/lockout"
	"github.com/galasfoundry/mooch-auth/internal/logger"
	"github.com/galasfoundry/mooch-auth/internal/model"
	"github.com/galasfoundry/mooch-auth/internal/password"
	"github.com/galasfoundry/mooch-auth/internal/repository/postgres"
	"github.com/galasfoundry/mooch-auth/internal/revocation"
	"github.com/galasfoundry/mooch-auth/internal/service"
	"github.com/galasfoundry/mooch-auth/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	var store model.Cache
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Fatal("failed to connect to redis", "error", err)
		}
		defer redisCache.Close()
		store = redisCache
	} else {
		logger.Warn("no redis address configured, using in-process cache")
		store = cache.NewMemory()
	}

	userRepo := postgres.NewUserRepository(db)
	refreshTokenRepo := postgres.NewRefreshTokenRepository(db)
	revocationRepo := postgres.NewRevocationRepository(db)

	retired, err := cfg.Tokens.RetiredKeySet()
	if err != nil {
		logger.Fatal("failed to parse retired keys", "error", err)
	}
	codec := token.NewJWT(cfg.Tokens.ActiveKey(), retired, cfg.Tokens.ClockSkew)

	revocationStore := revocation.NewStore(store, revocationRepo, logger)
	if err := revocationStore.Warm(ctx); err != nil {
		logger.Error("failed to warm revocation cache", "error", err)
	}

	guard := lockout.NewGuard(store, cfg.Lockout.Threshold, cfg.Lockout.Window, cfg.Lockout.Duration, logger)
	hasher := password.NewHasher(cfg.Password.HashCost)

	authService, err := service.NewAuth(userRepo, refreshTokenRepo, revocationStore, codec, hasher, guard, logger, service.Options{
		AccessTTL:            cfg.Tokens.AccessTTL,
		RefreshTTL:           cfg.Tokens.RefreshTTL,
		DefaultScope:         cfg.Tokens.DefaultScope,
		FailPolicy:           cfg.Revoke.FailPolicy,
		ElevatedScopes:       cfg.Revoke.ElevatedScopes,
		RevokeLineageOnReuse: cfg.Revoke.RevokeLineageOnReuse,
	})
	if err != nil {
		logger.Fatal("failed to initialize auth service", "error", err)
	}

	router := api.NewRouter(authService, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler: router,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runGarbageCollector(ctx, logger.With("component", "janitor"), revocationStore, refreshTokenRepo, cfg.Revoke.GarbageCollectEvery)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
		}
	}()

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", server.Addr)
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func runGarbageCollector(ctx context.Context, logger *logger.Logger, revocations *revocation.Store, refreshTokens *postgres.RefreshTokenRepository, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if removed, err := revocations.GarbageCollect(ctx, now); err != nil {
				logger.Error("revocation garbage collection failed", "error", err)
			} else if removed > 0 {
				logger.Debug("revocation garbage collection done", "removed", removed)
			}
			if removed, err := refreshTokens.DeleteExpired(ctx, now); err != nil {
				logger.Error("refresh token cleanup failed", "error", err)
			} else if removed > 0 {
				logger.Debug("refresh token cleanup done", "removed", removed)
			}
		}
	}
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
