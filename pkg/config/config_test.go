package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/httpusers/pkg/users"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "httpusers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, AttachmentsDatabase, cfg.Attachments.Backend)
	assert.Equal(t, MailerLog, cfg.Mailer.Type)
	assert.Equal(t, users.DefaultPolicy(), cfg.Policy())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
server:
  port: "9000"
  read-timeout: 5s
storage:
  backend: sqlite
  dsn: file::memory:
user:
  require-activation: true
cors:
  allowed-origins: ["https://a.example"]
`)
	t.Setenv("HTTPUSERS_PORT", "9100")
	t.Setenv("HTTPUSERS_REQUIRE_CONFIRMATION", "false")
	t.Setenv("HTTPUSERS_CORS_ALLOWED_ORIGINS", "https://b.example, https://c.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.True(t, cfg.Storage.IsSQL())
	assert.Equal(t, users.Policy{RequireActivation: true}, cfg.Policy())
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, t.TempDir(), "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "mongo" }, "invalid storage backend"},
		{"sql without dsn", func(c *Config) { c.Storage.Backend = StoragePGX }, "storage DSN is required"},
		{"filesystem without root", func(c *Config) { c.Attachments.Backend = AttachmentsFilesystem }, "filesystem root is required"},
		{"s3 without bucket", func(c *Config) { c.Attachments.Backend = AttachmentsS3 }, "S3 bucket is required"},
		{"unknown attachments", func(c *Config) { c.Attachments.Backend = "ftp" }, "invalid attachments backend"},
		{"webhook mailer without url", func(c *Config) { c.Mailer.Type = MailerWebhook }, "mailer webhook URL is required"},
		{"unknown mailer", func(c *Config) { c.Mailer.Type = "smtp" }, "invalid mailer"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "OpenTelemetry endpoint is required"},
		{"bad schedule", func(c *Config) { c.Stats.Schedule = "every minute" }, "invalid stats schedule"},
		{"cache without size", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.LocalSize = 0
		}, "cache local size must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("HTTPUSERS_TEST_BOOL", "1")
	t.Setenv("HTTPUSERS_TEST_BAD_BOOL", "maybe")
	t.Setenv("HTTPUSERS_TEST_INT", "42")
	t.Setenv("HTTPUSERS_TEST_BAD_INT", "x")
	t.Setenv("HTTPUSERS_TEST_DURATION", "2m")

	assert.Equal(t, "fallback", getEnv("TEST_UNSET", "fallback"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_BAD_BOOL", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, 2*time.Minute, getEnvDuration("TEST_DURATION", 0))
}
