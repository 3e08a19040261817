package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	Environment string

	// Empty DatabaseURL/RedisURL selects the embedded store and a no-op cache
	BaseURL             string
	TokenTTL            time.Duration
	SuspiciousThreshold int
	AbandonAfter        time.Duration
	SweepInterval       time.Duration
	TokenRetention      time.Duration

	AllowedOrigins []string
	Casdoor        CasdoorConfig
	Events         EventConfig
}

// CasdoorConfig configures bearer token verification. An empty Endpoint
// disables it and the X-User-ID header is trusted instead.
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

func (c CasdoorConfig) Enabled() bool {
	return c.Endpoint != "" && c.Certificate != ""
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		Environment: getEnv("ENVIRONMENT", "development"),

		BaseURL:             getEnv("BASE_URL", "http://localhost:3000"),
		TokenTTL:            time.Duration(getEnvInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		SuspiciousThreshold: getEnvInt("SUSPICIOUS_ACTIVITY_THRESHOLD", 5),
		AbandonAfter:        time.Duration(getEnvInt("ABANDON_AFTER_MINUTES", 180)) * time.Minute,
		SweepInterval:       time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		TokenRetention:      time.Duration(getEnvInt("TOKEN_RETENTION_HOURS", 168)) * time.Hour,

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		Casdoor: CasdoorConfig{
			Endpoint:         getEnv("CASDOOR_ENDPOINT", ""),
			ClientID:         getEnv("CASDOOR_CLIENT_ID", ""),
			ClientSecret:     getEnv("CASDOOR_CLIENT_SECRET", ""),
			Certificate:      getEnv("CASDOOR_CERTIFICATE", ""),
			OrganizationName: getEnv("CASDOOR_ORGANIZATION", "built-in"),
			ApplicationName:  getEnv("CASDOOR_APPLICATION", "evaluation-access"),
		},
		Events: EventConfig{
			Enabled:         getEnvBool("EVENTS_ENABLED", true),
			Publisher:       getEnv("EVENTS_PUBLISHER", "mock"),
			KafkaBrokers:    getEnv("KAFKA_BROKERS", "localhost:9092"),
			EvaluationTopic: getEnv("EVENTS_TOPIC", "evaluation-access"),
		},
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
