package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wavebreak/ratelimit/internal/config"
	"github.com/wavebreak/ratelimit/internal/log"
	"github.com/wavebreak/ratelimit/internal/middleware"
	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/service"
	"github.com/wavebreak/ratelimit/internal/store"
)

func HelloHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Hello, World!"))
}

// defaultRules is the built-in rule set; deployments replace it by
// swapping a new snapshot into the registry.
func defaultRules() []rule.Rule {
	return []rule.Rule{
		{
			ID:        "auth-login",
			Limit:     5,
			Window:    time.Minute,
			Algorithm: rule.SlidingCounter,
			Scope:     rule.ScopeAPIKey,
			Routes:    []string{"/api/v1/login"},
		},
		{
			ID:        "api-per-ip",
			Limit:     100,
			Window:    time.Minute,
			Algorithm: rule.TokenBucket,
			Scope:     rule.ScopeIP,
		},
		{
			ID:        "messaging-daily",
			Limit:     5,
			Window:    24 * time.Hour,
			Algorithm: rule.LeakyBucket,
			Scope:     rule.ScopeAPIKey,
			Routes:    []string{"/api/v1/messages"},
		},
	}
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Logger().Fatal("invalid configuration", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	registry, err := rule.NewRegistry(defaultRules()...)
	if err != nil {
		log.Logger().Fatal("invalid rule set", zap.Error(err))
	}

	svc := service.New(registry, store.NewRedis(redisClient), service.Config{
		Policy:       cfg.FailurePolicy,
		StoreTimeout: cfg.StoreTimeout,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/hello", HelloHandler)
	mux.HandleFunc("/api/v1/login", HelloHandler)
	mux.HandleFunc("/api/v1/messages", HelloHandler)

	wrappedMux := middleware.NewHandler(mux, &middleware.Config{
		Service:      svc,
		KeyExtractor: middleware.NewHeaderExtractor("X-Api-Key"),
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: wrappedMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Logger().Error("shutdown failed", zap.Error(err))
		}
	}()

	log.Logger().Info("run a server listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Logger().Fatal("failed to serve handler", zap.Error(err))
	}
}
