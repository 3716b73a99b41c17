package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.AllowShortSell)
	assert.False(t, cfg.Backup.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 7, cfg.Backup.RetentionCount)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOW_SHORT_SELL", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("BACKUP_S3_BUCKET", "ledger-backups")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://desk.example, https://ops.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.AllowShortSell)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.Len(t, cfg.CORSAllowedOrigins, 2)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:           8001,
			AuditSchedule:  "0 */15 * * * *",
			BackupSchedule: "0 0 3 * * *",
			Backup:         BackupConfig{RetentionCount: 3},
			Kafka:          KafkaConfig{Topic: "events"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid PORT"},
		{"bad audit schedule", func(c *Config) { c.AuditSchedule = "every minute" }, "AUDIT_SCHEDULE"},
		{"bad backup schedule", func(c *Config) { c.BackupSchedule = "* *" }, "BACKUP_SCHEDULE"},
		{"half credentials", func(c *Config) {
			c.Backup.Bucket = "b"
			c.Backup.AccessKeyID = "key"
		}, "must be set together"},
		{"no retention", func(c *Config) { c.Backup.RetentionCount = 0 }, "BACKUP_RETENTION_COUNT"},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Brokers = []string{"k:9092"}
			c.Kafka.Topic = ""
		}, "KAFKA_TOPIC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
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
