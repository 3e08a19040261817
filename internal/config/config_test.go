package config

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "TOKEN_TTL_HOURS", "SUSPICIOUS_ACTIVITY_THRESHOLD", "ALLOWED_ORIGINS", "CASDOOR_ENDPOINT", "EVENTS_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5, cfg.SuspiciousThreshold)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.Casdoor.Enabled())
	assert.True(t, cfg.Events.Enabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("TOKEN_TTL_HOURS", "2")
	t.Setenv("SUSPICIOUS_ACTIVITY_THRESHOLD", "3")
	t.Setenv("ABANDON_AFTER_MINUTES", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("CASDOOR_ENDPOINT", "https://auth.example.com")
	t.Setenv("CASDOOR_CERTIFICATE", "cert")
	t.Setenv("EVENTS_ENABLED", "false")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 3, cfg.SuspiciousThreshold)
	assert.Equal(t, 180*time.Minute, cfg.AbandonAfter)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Casdoor.Enabled())
	assert.False(t, cfg.Events.Enabled)
	assert.True(t, cfg.IsProduction())
}

func TestEventConfig_CreateEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, cfg := range []EventConfig{
		{Enabled: false, Publisher: "kafka"},
		{Enabled: true, Publisher: "mock"},
		{Enabled: true, Publisher: "carrier-pigeon"},
	} {
		publisher, err := cfg.CreateEventPublisher(logger)
		require.NoError(t, err)
		assert.IsType(t, &events.MockEventPublisher{}, publisher)
	}

	cfg := EventConfig{KafkaBrokers: "k1:9092, k2:9092"}
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.GetKafkaBrokers())
}
