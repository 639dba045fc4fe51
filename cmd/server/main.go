package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/assistant"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/cache"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/config"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/httpapi"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/service"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store/memory"
	pgstore "github.com/KayZee52/SMEs-Toolkit-sub000/internal/store/postgres"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	answerCache := cache.AnswerCache(cache.NewNoop())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			answerCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	delegate := assistant.NewHTTPDelegate(cfg.AssistantEndpoint, cfg.AssistantModel,
		time.Duration(cfg.AssistantTimeoutSeconds)*time.Second)
	engine := assistant.NewEngine(delegate, answerCache,
		time.Duration(cfg.AssistantCacheTTLSeconds)*time.Second, cfg.AssistantModel, logger)

	svc := service.New(repo, engine, logger)
	auth := httpapi.NewAuthManager(repo, cfg.AuthSecret,
		time.Duration(cfg.SessionTTLMinutes)*time.Minute, logger)
	if err := auth.Bootstrap(ctx); err != nil {
		logger.Fatal("auth bootstrap failed", zap.Error(err))
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SessionTTLMinutes < 5 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be at least 5")
	}
	return nil
}
