package config

import (
	"testing"
	"time"

	"github.com/example/pos-ledger/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":8081", cfg.FeedAddr)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "pos-events", cfg.KafkaTopic)
	assert.Equal(t, "stock-projector", cfg.KafkaConsumerGroup)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, auth.DefaultCost, cfg.BcryptCost)
	assert.Equal(t, time.Second, cfg.RelayInterval)
	assert.Equal(t, 100, cfg.RelayBatch)
	assert.Equal(t, 3, cfg.OrderNumberAttempts)
	assert.Equal(t, "UTC", cfg.OrderTimezone)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "pos.events", cfg.AMQPExchange)
	assert.False(t, cfg.KafkaEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("RELAY_BATCH", "25")
	t.Setenv("ORDER_NUMBER_ATTEMPTS", "5")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 25, cfg.RelayBatch)
	assert.Equal(t, 5, cfg.OrderNumberAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MalformedValues(t *testing.T) {
	t.Setenv("RELAY_BATCH", "lots")
	t.Setenv("TOKEN_TTL", "forever")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RELAY_BATCH")
	assert.Contains(t, err.Error(), "TOKEN_TTL")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreDriver:         DriverMemory,
			JWTSecret:           testSecret,
			TokenTTL:            time.Minute,
			BcryptCost:          auth.MinCost,
			IdempotencyTTL:      time.Hour,
			RelayInterval:       time.Second,
			RelayBatch:          10,
			OrderNumberAttempts: 3,
			OrderTimezone:       "UTC",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "JWT_SECRET"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, "STORE_DRIVER"},
		{"postgres without url", func(c *Config) { c.StoreDriver = DriverPostgres; c.DatabaseURL = "" }, "DATABASE_URL"},
		{"short admin password", func(c *Config) { c.AdminPassword = "123" }, "ADMIN_PASSWORD"},
		{"padded admin password", func(c *Config) { c.AdminPassword = "  admin  " }, "ADMIN_PASSWORD"},
		{"bcrypt cost too low", func(c *Config) { c.BcryptCost = 2 }, "BCRYPT_COST"},
		{"bcrypt cost too high", func(c *Config) { c.BcryptCost = 40 }, "BCRYPT_COST"},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }, "TOKEN_TTL"},
		{"zero idempotency ttl", func(c *Config) { c.IdempotencyTTL = 0 }, "IDEMPOTENCY_TTL"},
		{"zero batch", func(c *Config) { c.RelayBatch = 0 }, "RELAY_BATCH"},
		{"zero attempts", func(c *Config) { c.OrderNumberAttempts = 0 }, "ORDER_NUMBER_ATTEMPTS"},
		{"bad timezone", func(c *Config) { c.OrderTimezone = "Mars/Olympus" }, "ORDER_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, valid().Validate())
}
