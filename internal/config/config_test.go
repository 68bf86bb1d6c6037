package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseTTLClamp(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{name: "default_when_unset", seconds: 0, want: 300 * time.Second},
		{name: "below_minimum", seconds: 10, want: 60 * time.Second},
		{name: "minimum", seconds: 60, want: 60 * time.Second},
		{name: "custom", seconds: 900, want: 900 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LeaseTTLSeconds: tt.seconds}
			assert.Equal(t, tt.want, cfg.LeaseTTL())
		})
	}
}

func TestPresignTTLClamp(t *testing.T) {
	assert.Equal(t, 300*time.Second, (&Config{}).PresignTTL())
	assert.Equal(t, 60*time.Second, (&Config{PresignTTLSeconds: 5}).PresignTTL())
	assert.Equal(t, 7*24*time.Hour, (&Config{PresignTTLSeconds: 10_000_000}).PresignTTL())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LEASE_SIGNING_SECRET", "s3cr3t")
	t.Setenv("LEASE_TTL_SECONDS", "120")
	t.Setenv("PRIVILEGED_ROLES", "admin, release-manager ,")
	t.Setenv("ARTIFACT_STORAGE_PROVIDER", "memory")
	t.Setenv("AUDIT_SHEET_SYNC_ENABLED", "false")

	cfg := FromEnv()
	assert.Equal(t, "s3cr3t", cfg.LeaseSigningSecret)
	assert.Equal(t, 120, cfg.LeaseTTLSeconds)
	assert.Equal(t, []string{"admin", "release-manager"}, cfg.PrivilegedRoles)
	assert.Equal(t, StorageMemory, cfg.StorageProvider)
	assert.NoError(t, cfg.Validate())
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	cfg := FromEnv()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--listen", ":7000", "--lease-ttl", "90"}))

	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, 90, cfg.LeaseTTLSeconds)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "s3_without_bucket", mutate: func(c *Config) {}, wantErr: true},
		{name: "s3_with_bucket", mutate: func(c *Config) { c.S3Bucket = "artifacts" }},
		{name: "gcs_without_bucket", mutate: func(c *Config) { c.StorageProvider = StorageGCS }, wantErr: true},
		{name: "unknown_provider", mutate: func(c *Config) { c.StorageProvider = "ftp" }, wantErr: true},
		{name: "sheet_sync_incomplete", mutate: func(c *Config) {
			c.StorageProvider = StorageMemory
			c.SheetSyncEnabled = true
		}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
