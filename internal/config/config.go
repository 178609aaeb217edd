// Package config loads service configuration from the environment, optionally
// overlaid by a YAML file named in CAREBOT_CONFIG.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	HTTPAddr          string         `yaml:"http_addr"`
	DatabaseURL       string         `yaml:"database_url"`
	AutoMigrate       bool           `yaml:"auto_migrate"`
	JWTSecret         string         `yaml:"jwt_secret"`
	Timezone          string         `yaml:"timezone"`
	PatrolMaxPageSize int            `yaml:"patrol_max_page_size"`
	ShutdownTimeout   time.Duration  `yaml:"shutdown_timeout"`
	Liveness          LivenessConfig `yaml:"liveness"`
	Notify            NotifyConfig   `yaml:"notify"`
	Log               LogConfig      `yaml:"log"`
	Seed              Seed           `yaml:"seed"`

	// Location is resolved from Timezone by Validate.
	Location *time.Location `yaml:"-"`
}

// LivenessConfig drives the silent-robot sweep.
type LivenessConfig struct {
	Schedule string        `yaml:"schedule"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotifyConfig selects the outbound notification sinks. Empty endpoints disable a sink.
type NotifyConfig struct {
	TopicPrefix   string        `yaml:"topic_prefix"`
	Cooldown      time.Duration `yaml:"cooldown"`
	DedupeWindow  time.Duration `yaml:"dedupe_window"`
	MQTTBroker    string        `yaml:"mqtt_broker"`
	MQTTClientID  string        `yaml:"mqtt_client_id"`
	MQTTUsername  string        `yaml:"mqtt_username"`
	MQTTPassword  string        `yaml:"mqtt_password"`
	MQTTQoS       int           `yaml:"mqtt_qos"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	WebhookURL    string        `yaml:"webhook_url"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Service string `yaml:"service"`
}

// Seed is fixture data loaded into the in-memory stores when no database is configured.
type Seed struct {
	Elders      []SeedElder      `yaml:"elders"`
	Medications []SeedMedication `yaml:"medications"`
	Robots      []SeedRobot      `yaml:"robots"`
}

type SeedElder struct {
	ID          string `yaml:"id"`
	OwnerUserID string `yaml:"owner_user_id"`
	Name        string `yaml:"name"`
}

type SeedMedication struct {
	ID      string   `yaml:"id"`
	ElderID string   `yaml:"elder_id"`
	Name    string   `yaml:"name"`
	Slots   []string `yaml:"slots"`
}

type SeedRobot struct {
	ID           string `yaml:"id"`
	SerialNumber string `yaml:"serial_number"`
	ElderID      string `yaml:"elder_id"`
}

// Load reads the environment, applies the YAML overlay and validates the result.
func Load() (*Config, error) {
	cfg := fromEnv()
	if path := os.Getenv("CAREBOT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		AutoMigrate:       getenvBool("AUTO_MIGRATE", false),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		Timezone:          getenvDefault("TIMEZONE", "UTC"),
		PatrolMaxPageSize: getenvIntDefault("PATROL_MAX_PAGE_SIZE", 100),
		ShutdownTimeout:   getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Liveness: LivenessConfig{
			Schedule: getenvDefault("LIVENESS_SCHEDULE", "@every 1m"),
			Timeout:  getenvDuration("LIVENESS_TIMEOUT", 3*time.Minute),
		},
		Notify: NotifyConfig{
			TopicPrefix:   getenvDefault("NOTIFY_TOPIC_PREFIX", "carebot"),
			Cooldown:      getenvDuration("NOTIFY_COOLDOWN", 0),
			DedupeWindow:  getenvDuration("NOTIFY_DEDUPE_WINDOW", 0),
			MQTTBroker:    os.Getenv("NOTIFY_MQTT_BROKER"),
			MQTTClientID:  getenvDefault("NOTIFY_MQTT_CLIENT_ID", "carebot-cloud"),
			MQTTUsername:  os.Getenv("NOTIFY_MQTT_USERNAME"),
			MQTTPassword:  os.Getenv("NOTIFY_MQTT_PASSWORD"),
			MQTTQoS:       getenvIntDefault("NOTIFY_MQTT_QOS", 1),
			RedisAddr:     os.Getenv("NOTIFY_REDIS_ADDR"),
			RedisPassword: os.Getenv("NOTIFY_REDIS_PASSWORD"),
			RedisDB:       getenvIntDefault("NOTIFY_REDIS_DB", 0),
			WebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		Log: LogConfig{
			Level:   getenvDefault("LOG_LEVEL", "info"),
			Format:  getenvDefault("LOG_FORMAT", "json"),
			Service: getenvDefault("SERVICE_NAME", "carebot-cloud"),
		},
	}
}

// Validate checks required values and resolves Location.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err))
	} else {
		c.Location = loc
	}
	if c.Liveness.Timeout <= 0 {
		errs = append(errs, errors.New("liveness timeout must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if c.Notify.Cooldown < 0 || c.Notify.DedupeWindow < 0 {
		errs = append(errs, errors.New("notify cooldown and dedupe window must not be negative"))
	}
	if c.PatrolMaxPageSize < 1 || c.PatrolMaxPageSize > 100 {
		errs = append(errs, fmt.Errorf("patrol max page size must be in [1, 100], got %d", c.PatrolMaxPageSize))
	}
	if c.Notify.MQTTQoS < 0 || c.Notify.MQTTQoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.Notify.MQTTQoS))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// InMemory reports whether no database is configured.
func (c *Config) InMemory() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
