package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYMENT_WINDOW_SECONDS", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("INTERNAL_TOKEN", "")

	cfg := Load()
	assert.Equal(t, 15*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Error(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PAYMENT_WINDOW_SECONDS", "60")
	t.Setenv("KAFKA_BROKERS", " a:1, ,b:2 ")
	t.Setenv("INTERNAL_TOKEN", "s3cret")
	t.Setenv("PAYMENT_SWEEP_INTERVAL", "30s")
	t.Setenv("ORDER_SERVICE_URL", "http://orders/")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.Equal(t, time.Minute, cfg.PaymentWindow)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "http://orders", cfg.OrderServiceURL)
	assert.Equal(t, 0, cfg.RedisDB)
	require.NoError(t, cfg.Validate())
}

func TestValidate_NonPositiveWindow(t *testing.T) {
	cfg := Config{InternalToken: "x", PaymentWindow: 0, GatewayTimeout: time.Second, StoreTimeout: time.Second}
	assert.ErrorContains(t, cfg.Validate(), "PAYMENT_WINDOW_SECONDS")
}
