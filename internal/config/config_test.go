package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ICSSourceTimeout() != 10*time.Second {
		t.Errorf("ICSSourceTimeout = %v", cfg.ICSSourceTimeout())
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxSynchronizationsPerDay != 120 {
		t.Errorf("MaxSynchronizationsPerDay = %d", cfg.MaxSynchronizationsPerDay)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "max_synchronizations_per_day: 5\nscheduled_sync_workers: 3\ns3:\n  bucket: snapshots\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCHEDULED_SYNC_WORKERS", "7")
	t.Setenv("ALLOWED_REDIRECT_URIS", "https://a.example/cb, https://b.example/cb,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxSynchronizationsPerDay != 5 {
		t.Errorf("file value not applied: %d", cfg.MaxSynchronizationsPerDay)
	}
	if cfg.ScheduledSyncWorkers != 7 {
		t.Errorf("env should override file: %d", cfg.ScheduledSyncWorkers)
	}
	if cfg.S3.Bucket != "snapshots" {
		t.Errorf("S3.Bucket = %q", cfg.S3.Bucket)
	}
	if len(cfg.AllowedRedirectURIs) != 2 || cfg.AllowedRedirectURIs[1] != "https://b.example/cb" {
		t.Errorf("AllowedRedirectURIs = %v", cfg.AllowedRedirectURIs)
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{"GOOGLE_API_BATCH_SIZE": "fifty"}
	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err == nil || !strings.Contains(err.Error(), "GOOGLE_API_BATCH_SIZE") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero limit", func(c *Config) { c.MaxSynchronizationsPerDay = 0 }, "max_synchronizations_per_day"},
		{"bad cron", func(c *Config) { c.ScheduledSyncCron = "every day" }, "scheduled_sync_cron_schedule"},
		{"unknown provider", func(c *Config) { c.CalendarProvider = "outlook" }, "calendar_provider"},
		{"unknown storage", func(c *Config) { c.ICSStorage = "ftp" }, "ics_storage"},
		{"s3 without bucket", func(c *Config) { c.ICSStorage = StorageS3 }, "bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
