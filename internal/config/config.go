package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"lojinha.org/internal/auth"
)

// Config captures process-wide settings resolved once at startup. Nothing
// reads the environment after FromEnv returns; request handling only sees
// this immutable value.
type Config struct {
	Addr          string
	PGDSN         string
	JWTSecret     string
	TokenLifetime time.Duration
	RatePerSec    int
	RateBurst     int
}

var errMissingSecret = errors.New("config: LOJINHA_JWT_SECRET is not set")

// FromEnv builds a Config from environment variables so main stays lean.
// The signing secret is mandatory; everything else has a sane default.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          ":8080",
		PGDSN:         os.Getenv("LOJINHA_PG_DSN"),
		TokenLifetime: auth.ParseLifetime(os.Getenv("LOJINHA_JWT_EXPIRES")),
		RatePerSec:    10,
		RateBurst:     20,
	}

	if addr := strings.TrimSpace(os.Getenv("LOJINHA_ADDR")); addr != "" {
		cfg.Addr = addr
	}

	cfg.JWTSecret = strings.TrimSpace(os.Getenv("LOJINHA_JWT_SECRET"))
	if cfg.JWTSecret == "" {
		return Config{}, errMissingSecret
	}

	if raw := os.Getenv("LOJINHA_RATE_PER_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.RatePerSec = v
		}
	}
	if raw := os.Getenv("LOJINHA_RATE_BURST"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.RateBurst = v
		}
	}

	return cfg, nil
}
