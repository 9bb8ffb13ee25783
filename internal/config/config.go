// Package config loads engine configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds everything the server binary needs at startup.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	JWTSecret  []byte
	TokenTTL   time.Duration
	AdminToken string

	// TradingFee is skimmed from each spend before it enters the pool,
	// f ∈ [0,1). Zero by default.
	TradingFee decimal.Decimal

	// DefaultStartingPoints seeds new accounts that don't ask for a
	// specific balance.
	DefaultStartingPoints decimal.Decimal

	RequestTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults and
// validating the security-sensitive values.
func Load() (Config, error) {
	cfg := Config{
		Port:           getenv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		CacheTTL:       30 * time.Second,
		JWTSecret:      []byte(getenv("JWT_SECRET", "dev-secret-change-me")),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		RequestTimeout: 30 * time.Second,
	}

	var err error
	if cfg.TokenTTL, err = time.ParseDuration(getenv("TOKEN_TTL", "168h")); err != nil {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	if cfg.TradingFee, err = decimal.NewFromString(getenv("TRADING_FEE", "0")); err != nil {
		return Config{}, fmt.Errorf("invalid TRADING_FEE: %w", err)
	}

	if cfg.DefaultStartingPoints, err = decimal.NewFromString(getenv("DEFAULT_STARTING_POINTS", "1000")); err != nil {
		return Config{}, fmt.Errorf("invalid DEFAULT_STARTING_POINTS: %w", err)
	}

	if len(cfg.JWTSecret) < 16 {
		return Config{}, errors.New("JWT_SECRET must be at least 16 bytes")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
