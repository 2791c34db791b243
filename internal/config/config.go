// Package config loads deployment settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wavebreak/ratelimit/internal/service"
)

// Config captures the runtime settings of a limiter instance.
type Config struct {
	ListenAddr    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FailurePolicy service.FailurePolicy
	StoreTimeout  time.Duration
}

// FromEnv reads configuration from the environment, applying defaults
// for anything unset. Invalid values are a startup error.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:    envOr("LISTEN_ADDR", "localhost:8080"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		FailurePolicy: service.FailOpen,
		StoreTimeout:  100 * time.Millisecond,
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	switch v := os.Getenv("FAILURE_POLICY"); v {
	case "", "open":
		cfg.FailurePolicy = service.FailOpen
	case "closed":
		cfg.FailurePolicy = service.FailClosed
	default:
		return nil, fmt.Errorf("FAILURE_POLICY must be \"open\" or \"closed\", got %q", v)
	}

	if v := os.Getenv("STORE_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("STORE_TIMEOUT_MS must be a positive integer, got %q", v)
		}
		cfg.StoreTimeout = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
