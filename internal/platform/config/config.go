// Package config loads every runtime setting for the khata server from
// KHATA_* environment variables, with an optional .env file for development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	strutil "khata/pkg/platform/strings"
)

// Config holds all configuration for the server and its workers.
type Config struct {
	Addr        string `mapstructure:"KHATA_ADDR"`
	DatabaseURL string `mapstructure:"KHATA_DATABASE_URL"`
	RedisURL    string `mapstructure:"KHATA_REDIS_URL"`

	KafkaBrokers []string `mapstructure:"KHATA_KAFKA_BROKERS"`
	AuditTopic   string   `mapstructure:"KHATA_AUDIT_TOPIC"`

	JWTSigningKey string `mapstructure:"KHATA_JWT_SIGNING_KEY"`
	OpsToken      string `mapstructure:"KHATA_OPS_TOKEN"`

	// Timezone is the business time zone in which collection days and months
	// are reckoned. Deposit dates and period windows are evaluated here, not
	// in UTC and not in the caller's local zone.
	Timezone string `mapstructure:"KHATA_TIMEZONE"`

	ScopeCacheTTL    time.Duration `mapstructure:"KHATA_SCOPE_CACHE_TTL"`
	EligibleCacheTTL time.Duration `mapstructure:"KHATA_ELIGIBLE_CACHE_TTL"`

	MaturitySweepSchedule string `mapstructure:"KHATA_MATURITY_SWEEP_SCHEDULE"`
	DriftSweepSchedule    string `mapstructure:"KHATA_DRIFT_SWEEP_SCHEDULE"`

	LogLevel      string `mapstructure:"KHATA_LOG_LEVEL"`
	SeedDirectory bool   `mapstructure:"KHATA_SEED_DIRECTORY"`
}

// Load reads configuration from the environment and from an optional .env
// file in path. Environment variables win over file values.
func Load(path string) (Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.AutomaticEnv()

	v.SetDefault("KHATA_ADDR", ":8080")
	v.SetDefault("KHATA_AUDIT_TOPIC", "khata.audit.events")
	v.SetDefault("KHATA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production")
	v.SetDefault("KHATA_OPS_TOKEN", "dev-ops-token-change-in-production")
	v.SetDefault("KHATA_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("KHATA_SCOPE_CACHE_TTL", "10m")
	v.SetDefault("KHATA_ELIGIBLE_CACHE_TTL", "5m")
	v.SetDefault("KHATA_MATURITY_SWEEP_SCHEDULE", "15 0 * * *")
	v.SetDefault("KHATA_DRIFT_SWEEP_SCHEDULE", "45 2 * * *")
	v.SetDefault("KHATA_LOG_LEVEL", "info")

	// AutomaticEnv alone does not surface env vars to Unmarshal; each key
	// has to be bound explicitly.
	for _, key := range []string{
		"KHATA_ADDR",
		"KHATA_DATABASE_URL",
		"KHATA_REDIS_URL",
		"KHATA_KAFKA_BROKERS",
		"KHATA_AUDIT_TOPIC",
		"KHATA_JWT_SIGNING_KEY",
		"KHATA_OPS_TOKEN",
		"KHATA_TIMEZONE",
		"KHATA_SCOPE_CACHE_TTL",
		"KHATA_ELIGIBLE_CACHE_TTL",
		"KHATA_MATURITY_SWEEP_SCHEDULE",
		"KHATA_DRIFT_SWEEP_SCHEDULE",
		"KHATA_LOG_LEVEL",
		"KHATA_SEED_DIRECTORY",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.KafkaBrokers = strutil.DedupeAndTrim(cfg.KafkaBrokers)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("KHATA_DATABASE_URL is required")
	}

	return cfg, nil
}

// Location resolves the configured business time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
