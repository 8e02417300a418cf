package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/httpusers/pkg/users"
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "HTTPUSERS_"

// Storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StoragePGX      = "pgx"
	StorageSQLite   = "sqlite"
)

// Attachment backends
const (
	AttachmentsDatabase   = "database"
	AttachmentsFilesystem = "filesystem"
	AttachmentsS3         = "s3"
)

// Mailer types
const (
	MailerLog     = "log"
	MailerWebhook = "webhook"
	MailerNone    = "none"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Attachments   AttachmentsConfig   `yaml:"attachments"`
	Mailer        MailerConfig        `yaml:"mailer"`
	Webhooks      WebhooksConfig      `yaml:"webhooks"`
	User          UserConfig          `yaml:"user"`
	Observability ObservabilityConfig `yaml:"observability"`
	CORS          CORSConfig          `yaml:"cors"`
	Stats         StatsConfig         `yaml:"stats"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read-timeout"`
	WriteTimeout    time.Duration `yaml:"write-timeout"`
	IdleTimeout     time.Duration `yaml:"idle-timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
	MaxBodyBytes    int64         `yaml:"max-body-bytes"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// StorageConfig selects the document store
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	DSN          string `yaml:"dsn"`
	Migrate      bool   `yaml:"migrate"`
	MaxOpenConns int    `yaml:"max-open-conns"`
}

// IsSQL reports whether the backend is one of the SQL dialects
func (s StorageConfig) IsSQL() bool {
	switch s.Backend {
	case StoragePostgres, StoragePGX, StorageSQLite:
		return true
	}
	return false
}

// CacheConfig configures the read-through document cache
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RedisURL      string `yaml:"redis-url"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
	LocalSize     int    `yaml:"local-size"`
	// LocalTTL bounds how long a replica may serve a document another
	// replica has changed. User documents bypass the local level.
	LocalTTL time.Duration `yaml:"local-ttl"`
	RedisTTL time.Duration `yaml:"redis-ttl"`
}

// AttachmentsConfig selects where user keys are stored
type AttachmentsConfig struct {
	Backend        string   `yaml:"backend"`
	FilesystemRoot string   `yaml:"filesystem-root"`
	S3             S3Config `yaml:"s3"`
}

// S3Config configures the S3 attachment backend
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	AccessKey    string `yaml:"access-key"`
	SecretKey    string `yaml:"secret-key"`
	UsePathStyle bool   `yaml:"use-path-style"`
	CreateBucket bool   `yaml:"create-bucket"`
}

// MailerConfig selects how account mail is delivered
type MailerConfig struct {
	Type          string        `yaml:"type"`
	WebhookURL    string        `yaml:"webhook-url"`
	WebhookSecret string        `yaml:"webhook-secret"`
	Timeout       time.Duration `yaml:"timeout"`
	// IncludeTokens logs invite codes and shakes; development only
	IncludeTokens bool `yaml:"include-tokens"`
}

// WebhooksConfig forwards lifecycle events to an HTTP endpoint
type WebhooksConfig struct {
	EventsURL string        `yaml:"events-url"`
	Secret    string        `yaml:"secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

// UserConfig holds the signup policy
type UserConfig struct {
	RequireActivation   bool `yaml:"require-activation"`
	RequireConfirmation bool `yaml:"require-confirmation"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log-level"`
	LogFormat string `yaml:"log-format"`

	MetricsEnabled bool `yaml:"metrics-enabled"`

	OTelEnabled     bool    `yaml:"otel-enabled"`
	OTelEndpoint    string  `yaml:"otel-endpoint"`
	OTelServiceName string  `yaml:"otel-service-name"`
	OTelInsecure    bool    `yaml:"otel-insecure"`
	OTelSampleRatio float64 `yaml:"otel-sample-ratio"`
}

// CORSConfig lists origins allowed to call the API from a browser
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed-origins"`
}

// StatsConfig schedules the users-by-status refresh
type StatsConfig struct {
	Schedule string `yaml:"schedule"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: StorageConfig{
			Backend: StorageMemory,
			Migrate: true,
		},
		Cache: CacheConfig{
			LocalSize: 1024,
			LocalTTL:  30 * time.Second,
			RedisTTL:  15 * time.Minute,
		},
		Attachments: AttachmentsConfig{
			Backend: AttachmentsDatabase,
			S3:      S3Config{Region: "us-east-1", Prefix: "keys"},
		},
		Mailer: MailerConfig{
			Type:    MailerLog,
			Timeout: 10 * time.Second,
		},
		Webhooks: WebhooksConfig{Timeout: 10 * time.Second},
		User: UserConfig{
			RequireConfirmation: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:        "info",
			LogFormat:       "json",
			MetricsEnabled:  true,
			OTelEndpoint:    "localhost:4317",
			OTelServiceName: "httpusers",
			OTelInsecure:    true,
		},
		Stats: StatsConfig{Schedule: "@every 1m"},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when empty), then HTTPUSERS_* environment variables, and
// validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields whose environment variable is set
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(c.Server.MaxBodyBytes)))

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.DSN = getEnv("STORAGE_DSN", c.Storage.DSN)
	c.Storage.Migrate = getEnvBool("STORAGE_MIGRATE", c.Storage.Migrate)
	c.Storage.MaxOpenConns = getEnvInt("STORAGE_MAX_OPEN_CONNS", c.Storage.MaxOpenConns)

	c.Cache.Enabled = getEnvBool("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.RedisURL = getEnv("REDIS_URL", c.Cache.RedisURL)
	c.Cache.RedisPassword = getEnv("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvInt("REDIS_DB", c.Cache.RedisDB)
	c.Cache.LocalSize = getEnvInt("CACHE_LOCAL_SIZE", c.Cache.LocalSize)
	c.Cache.LocalTTL = getEnvDuration("CACHE_LOCAL_TTL", c.Cache.LocalTTL)
	c.Cache.RedisTTL = getEnvDuration("CACHE_REDIS_TTL", c.Cache.RedisTTL)

	c.Attachments.Backend = getEnv("ATTACHMENTS_BACKEND", c.Attachments.Backend)
	c.Attachments.FilesystemRoot = getEnv("ATTACHMENTS_ROOT", c.Attachments.FilesystemRoot)
	c.Attachments.S3.Endpoint = getEnv("S3_ENDPOINT", c.Attachments.S3.Endpoint)
	c.Attachments.S3.Region = getEnv("S3_REGION", c.Attachments.S3.Region)
	c.Attachments.S3.Bucket = getEnv("S3_BUCKET", c.Attachments.S3.Bucket)
	c.Attachments.S3.Prefix = getEnv("S3_PREFIX", c.Attachments.S3.Prefix)
	c.Attachments.S3.AccessKey = getEnv("S3_ACCESS_KEY", c.Attachments.S3.AccessKey)
	c.Attachments.S3.SecretKey = getEnv("S3_SECRET_KEY", c.Attachments.S3.SecretKey)
	c.Attachments.S3.UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", c.Attachments.S3.UsePathStyle)
	c.Attachments.S3.CreateBucket = getEnvBool("S3_CREATE_BUCKET", c.Attachments.S3.CreateBucket)

	c.Mailer.Type = getEnv("MAILER", c.Mailer.Type)
	c.Mailer.WebhookURL = getEnv("MAILER_WEBHOOK_URL", c.Mailer.WebhookURL)
	c.Mailer.WebhookSecret = getEnv("MAILER_WEBHOOK_SECRET", c.Mailer.WebhookSecret)
	c.Mailer.Timeout = getEnvDuration("MAILER_TIMEOUT", c.Mailer.Timeout)
	c.Mailer.IncludeTokens = getEnvBool("MAILER_INCLUDE_TOKENS", c.Mailer.IncludeTokens)

	c.Webhooks.EventsURL = getEnv("EVENTS_WEBHOOK_URL", c.Webhooks.EventsURL)
	c.Webhooks.Secret = getEnv("EVENTS_WEBHOOK_SECRET", c.Webhooks.Secret)

	c.User.RequireActivation = getEnvBool("REQUIRE_ACTIVATION", c.User.RequireActivation)
	c.User.RequireConfirmation = getEnvBool("REQUIRE_CONFIRMATION", c.User.RequireConfirmation)

	c.Observability.LogLevel = getEnv("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelInsecure = getEnvBool("OTEL_INSECURE", c.Observability.OTelInsecure)

	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}
	c.Stats.Schedule = getEnv("STATS_SCHEDULE", c.Stats.Schedule)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres, StoragePGX, StorageSQLite:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage DSN is required for %s storage", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage backend: %s (must be memory, postgres, pgx, or sqlite)", c.Storage.Backend))
	}

	if c.Cache.Enabled && c.Cache.LocalSize <= 0 {
		errs = append(errs, errors.New("cache local size must be positive"))
	}

	switch c.Attachments.Backend {
	case AttachmentsDatabase:
	case AttachmentsFilesystem:
		if c.Attachments.FilesystemRoot == "" {
			errs = append(errs, errors.New("filesystem root is required for filesystem attachments"))
		}
	case AttachmentsS3:
		if c.Attachments.S3.Bucket == "" {
			errs = append(errs, errors.New("S3 bucket is required for s3 attachments"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid attachments backend: %s (must be database, filesystem, or s3)", c.Attachments.Backend))
	}

	switch c.Mailer.Type {
	case MailerLog, MailerNone:
	case MailerWebhook:
		if c.Mailer.WebhookURL == "" {
			errs = append(errs, errors.New("mailer webhook URL is required for webhook mailer"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid mailer: %s (must be log, webhook, or none)", c.Mailer.Type))
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if c.Observability.OTelServiceName == "" {
			errs = append(errs, errors.New("OpenTelemetry service name is required when OTel is enabled"))
		}
	}

	if c.Stats.Schedule != "" {
		if _, err := cron.ParseStandard(c.Stats.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid stats schedule %q: %w", c.Stats.Schedule, err))
		}
	}

	return errors.Join(errs...)
}

// Policy returns the signup policy
func (c *Config) Policy() users.Policy {
	return users.Policy{
		RequireActivation:   c.User.RequireActivation,
		RequireConfirmation: c.User.RequireConfirmation,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
