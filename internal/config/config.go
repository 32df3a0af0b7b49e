// Package config содержит логику чтения конфигурации сервиса погашения скидок.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultRedisURL   = "redis://localhost:6379/0"
	defaultTokenTTL   = 5 * time.Minute
)

// Config содержит параметры конфигурации сервиса погашения скидок.
type Config struct {
	RunAddress                 string        `env:"RUN_ADDRESS"`
	DatabaseURI                string        `env:"DATABASE_URI"`
	RedisURL                   string        `env:"REDIS_URL"`
	SubscriptionServiceAddress string        `env:"SUBSCRIPTION_SERVICE_ADDRESS"`
	RabbitMQURL                string        `env:"RABBITMQ_URL"`
	TerminalSecret             string        `env:"TERMINAL_SECRET"`
	TokenTTL                   time.Duration `env:"TOKEN_TTL"`
	OfferCacheTTL              time.Duration `env:"OFFER_CACHE_TTL" envDefault:"30s"`
	ReconcileInterval          time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
	CORSAllowedOrigins         []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisURL, "r", defaultRedisURL, "redis URL for the token store")
	flag.StringVar(&cfg.SubscriptionServiceAddress, "s", "", "subscription service address")
	flag.StringVar(&cfg.RabbitMQURL, "q", "", "RabbitMQ URL for redemption events")
	flag.StringVar(&cfg.TerminalSecret, "k", "", "secret for partner terminal tokens")
	flag.DurationVar(&cfg.TokenTTL, "t", defaultTokenTTL, "redemption token lifetime")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.RedisURL != "" {
		cfg.RedisURL = envCfg.RedisURL
	}
	if envCfg.SubscriptionServiceAddress != "" {
		cfg.SubscriptionServiceAddress = envCfg.SubscriptionServiceAddress
	}
	if envCfg.RabbitMQURL != "" {
		cfg.RabbitMQURL = envCfg.RabbitMQURL
	}
	if envCfg.TerminalSecret != "" {
		cfg.TerminalSecret = envCfg.TerminalSecret
	}
	if envCfg.TokenTTL != 0 {
		cfg.TokenTTL = envCfg.TokenTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = defaultRedisURL
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TokenTTL)
	}

	origins := make([]string, 0, len(cfg.CORSAllowedOrigins))
	for _, o := range cfg.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSAllowedOrigins = origins

	return cfg, nil
}
