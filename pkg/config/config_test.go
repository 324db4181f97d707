package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Chat.PageSize)
	assert.Equal(t, 50, cfg.Chat.InboxLimit)
	assert.Equal(t, 200, cfg.Chat.PreviewLength)
	assert.Equal(t, 2000, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 500*time.Millisecond, cfg.Chat.ReadDebounce)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_ProductionSecretLength(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("ENV", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "32 characters")
}

func TestLoad_KafkaBrokers(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "tourly.messages", cfg.Kafka.Topic)
}
