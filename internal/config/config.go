package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds environment-based settings
type Config struct {
	Environment    string
	LogLevel       string
	ServerAddress  string
	DatabaseURL    string
	MigrationsPath string
	JWTSecret      string

	RedisAddress  string
	RedisUsername string
	RedisPassword string

	MQTTBrokerURL string
	MQTTClientID  string

	SentryDSN string

	Timezone            *time.Location
	OrgUpdateThresholdM float64
	ResolutionTTL       time.Duration
	PrefetchDaysBack    int
	PrefetchDaysForward int
	ScheduleCacheOrgs   int
	LocationReadTimeout time.Duration
}

// Load reads configuration from environment variables, after merging an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Environment:    getenv("APP_ENV", "production"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		ServerAddress:  getenv("SERVER_ADDRESS", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationsPath: getenv("MIGRATIONS_PATH", "./migrations"),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		RedisAddress:  getenv("REDIS_ADDRESS", "localhost:6379"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:  getenv("MQTT_CLIENT_ID", "minaret-"+uuid.NewString()),

		SentryDSN: os.Getenv("SENTRY_DSN"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	if cfg.Timezone, err = time.LoadLocation(getenv("APP_TIMEZONE", "Local")); err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	if cfg.OrgUpdateThresholdM, err = getFloat("ORG_UPDATE_THRESHOLD_METERS", 500); err != nil {
		return nil, err
	}
	ttlMinutes, err := getInt("RESOLUTION_TTL_MINUTES", 360)
	if err != nil {
		return nil, err
	}
	cfg.ResolutionTTL = time.Duration(ttlMinutes) * time.Minute
	if cfg.PrefetchDaysBack, err = getInt("PREFETCH_DAYS_BACK", 2); err != nil {
		return nil, err
	}
	if cfg.PrefetchDaysForward, err = getInt("PREFETCH_DAYS_FORWARD", 14); err != nil {
		return nil, err
	}
	if cfg.ScheduleCacheOrgs, err = getInt("SCHEDULE_CACHE_ORGS", 256); err != nil {
		return nil, err
	}
	if cfg.LocationReadTimeout, err = time.ParseDuration(getenv("LOCATION_READ_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("invalid LOCATION_READ_TIMEOUT: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}
