package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "haversine", cfg.RoutingProvider)
	assert.Equal(t, "all", cfg.ComputePolicy)
	assert.Equal(t, 5, cfg.BatchConcurrency)
	assert.Equal(t, 100, cfg.BatchMaxSize)
	assert.Equal(t, uint32(5), cfg.BreakerFailureThreshold)
	assert.True(t, cfg.ProviderFallback)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DATABASE_DRIVER", "pgx")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/distances")
	t.Setenv("ROUTING_PROVIDER", "ors")
	t.Setenv("ORS_API_KEY", "secret")
	t.Setenv("PROVIDER_RATE_PER_SECOND", "2.5")
	t.Setenv("PROVIDER_FALLBACK", "false")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "3")
	t.Setenv("COMPUTE_POLICY", "requested")
	t.Setenv("BATCH_CONCURRENCY", "8")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_TTL", "1h")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "pgx", cfg.DatabaseDriver)
	assert.Equal(t, "ors", cfg.RoutingProvider)
	assert.Equal(t, "secret", cfg.ORSAPIKey)
	assert.InDelta(t, 2.5, cfg.ProviderRatePerSecond, 1e-9)
	assert.False(t, cfg.ProviderFallback)
	assert.Equal(t, uint32(3), cfg.BreakerFailureThreshold)
	assert.Equal(t, "requested", cfg.ComputePolicy)
	assert.Equal(t, 8, cfg.BatchConcurrency)
	assert.Equal(t, time.Hour, cfg.RedisTTL)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":7070"
batch_max_size: 25
cors_origins:
  - https://file.example.com
`), 0o600))
	t.Setenv(PathEnvVar, path)
	t.Setenv("BATCH_MAX_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 50, cfg.BatchMaxSize)
	assert.Equal(t, []string{"https://file.example.com"}, cfg.CORSOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"ors without key", map[string]string{"ROUTING_PROVIDER": "ors"}},
		{"unknown provider", map[string]string{"ROUTING_PROVIDER": "google"}},
		{"unknown policy", map[string]string{"COMPUTE_POLICY": "some"}},
		{"zero concurrency", map[string]string{"BATCH_CONCURRENCY": "0"}},
		{"bad duration", map[string]string{"SHUTDOWN_TIMEOUT": "soon"}},
		{"bad driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"bad redis addr", map[string]string{"REDIS_ADDR": "nowhere"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MemoryDriverNeedsNoURL(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DatabaseDriver)
}
