package config

import (
	"fmt"
	"os"
	"property-distance-service/internal/platform/validation"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names an optional YAML file layered between defaults and env.
const PathEnvVar = "CONFIG_PATH"

// Config holds all service settings. Keys are the lowercased environment
// variable names, so HTTP_ADDR and `http_addr:` in YAML set the same field.
type Config struct {
	HTTPAddr        string        `koanf:"http_addr" validate:"required"`
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format" validate:"oneof=json console"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// pgx (alias postgres) or sqlite; memory keeps everything in process and seeds from SeedPath.
	DatabaseDriver string `koanf:"database_driver" validate:"oneof=pgx postgres sqlite memory"`
	DatabaseURL    string `koanf:"database_url" validate:"required_unless=DatabaseDriver memory"`
	SeedPath       string `koanf:"seed_path"`

	RoutingProvider         string        `koanf:"routing_provider" validate:"oneof=haversine ors"`
	ORSAPIKey               string        `koanf:"ors_api_key" validate:"required_if=RoutingProvider ors"`
	ORSBaseURL              string        `koanf:"ors_base_url" validate:"omitempty,url"`
	ORSTimeout              time.Duration `koanf:"ors_timeout" validate:"gt=0"`
	ProviderRatePerSecond   float64       `koanf:"provider_rate_per_second" validate:"gte=0"`
	ProviderBurst           int           `koanf:"provider_burst" validate:"gte=0"`
	ProviderFallback        bool          `koanf:"provider_fallback"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"gte=1"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gt=0"`

	ComputePolicy    string `koanf:"compute_policy" validate:"oneof=all requested"`
	BatchConcurrency int    `koanf:"batch_concurrency" validate:"gte=1,lte=64"`
	BatchMaxSize     int    `koanf:"batch_max_size" validate:"gte=1,lte=1000"`

	// Empty disables the Redis read-through layer.
	RedisAddr string        `koanf:"redis_addr" validate:"omitempty,hostname_port"`
	RedisTTL  time.Duration `koanf:"redis_ttl" validate:"gte=0"`

	// Empty disables publishing.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic" validate:"required"`

	RateLimitPerMinute int      `koanf:"rate_limit_per_minute" validate:"gte=0"`
	CORSOrigins        []string `koanf:"cors_origins"`
}

func defaultConfig() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,

		DatabaseDriver: "sqlite",
		DatabaseURL:    "data/distances.db",
		SeedPath:       "data/seeds/entities.json",

		RoutingProvider:         "haversine",
		ORSBaseURL:              "https://api.openrouteservice.org",
		ORSTimeout:              10 * time.Second,
		ProviderRatePerSecond:   0,
		ProviderBurst:           1,
		ProviderFallback:        true,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,

		ComputePolicy:    "all",
		BatchConcurrency: 5,
		BatchMaxSize:     100,

		RedisTTL: 24 * time.Hour,

		KafkaBrokers: []string{},
		KafkaTopic:   "distance-records",

		RateLimitPerMinute: 600,
		CORSOrigins:        []string{},
	}
}

// Load layers defaults < optional YAML file (CONFIG_PATH) < environment and
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(PathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitLists(k, "kafka_brokers", "cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validation.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// splitLists turns comma-separated env strings into trimmed slices. Values
// that are already lists (from YAML) are left alone.
func splitLists(k *koanf.Koanf, paths ...string) error {
	for _, path := range paths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := make([]string, 0)
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// RedisEnabled reports whether the Redis read-through layer is configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// KafkaEnabled reports whether computed records are published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }
