package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGoogle = "google"
	ProviderCalDAV = "caldav"

	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// S3Config holds the object store used for raw ICS snapshots.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// CalDAVConfig holds the credentials of the CalDAV destination account.
type CalDAVConfig struct {
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the application configuration. It is built once at startup and
// passed by value to constructors.
type Config struct {
	LogLevel     string `yaml:"log_level"`
	DatabasePath string `yaml:"database_path"`

	MaxICSSizeBytes     int64 `yaml:"max_ics_size_bytes"`
	ICSSourceTimeoutSec int   `yaml:"url_ics_source_timeout_s"`

	MaxSynchronizationsPerDay int `yaml:"max_synchronizations_per_day"`

	// ScheduledSyncCron is a standard 5-field cron spec or a descriptor
	// such as "@daily".
	ScheduledSyncCron       string `yaml:"scheduled_sync_cron_schedule"`
	ScheduledSyncTimeoutSec int    `yaml:"scheduled_sync_timeout_sec"`
	ScheduledSyncWorkers    int    `yaml:"scheduled_sync_workers"`

	GoogleAPIBatchSize  int      `yaml:"google_api_batch_size"`
	GoogleClientID      string   `yaml:"google_client_id"`
	GoogleClientSecret  string   `yaml:"google_client_secret"`
	AllowedRedirectURIs []string `yaml:"allowed_redirect_uris"`

	CalendarProvider string       `yaml:"calendar_provider"`
	CalDAV           CalDAVConfig `yaml:"caldav"`

	ICSStorage    string   `yaml:"ics_storage"`
	ICSStorageDir string   `yaml:"ics_storage_dir"`
	S3            S3Config `yaml:"s3"`

	DevNotifyWebhookURL string `yaml:"dev_notify_webhook_url"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:                  "info",
		DatabasePath:              "syncademic.db",
		MaxICSSizeBytes:           1 << 20,
		ICSSourceTimeoutSec:       10,
		MaxSynchronizationsPerDay: 120,
		ScheduledSyncCron:         "@daily",
		ScheduledSyncTimeoutSec:   3600,
		ScheduledSyncWorkers:      10,
		GoogleAPIBatchSize:        50,
		CalendarProvider:          ProviderGoogle,
		ICSStorage:                StorageNone,
		ICSStorageDir:             "ics-snapshots",
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment variables, in increasing precedence. A missing file
// is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE_PATH", &c.DatabasePath)
	if v, ok := lookup("MAX_ICS_SIZE_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_ICS_SIZE_BYTES: %w", err))
		} else {
			c.MaxICSSizeBytes = n
		}
	}
	num("URL_ICS_SOURCE_TIMEOUT_S", &c.ICSSourceTimeoutSec)
	num("MAX_SYNCHRONIZATIONS_PER_DAY", &c.MaxSynchronizationsPerDay)
	str("SCHEDULED_SYNC_CRON_SCHEDULE", &c.ScheduledSyncCron)
	num("SCHEDULED_SYNC_TIMEOUT_SEC", &c.ScheduledSyncTimeoutSec)
	num("SCHEDULED_SYNC_WORKERS", &c.ScheduledSyncWorkers)
	num("GOOGLE_API_BATCH_SIZE", &c.GoogleAPIBatchSize)
	str("GOOGLE_CLIENT_ID", &c.GoogleClientID)
	str("GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)
	if v, ok := lookup("ALLOWED_REDIRECT_URIS"); ok && v != "" {
		c.AllowedRedirectURIs = splitList(v)
	}
	str("CALENDAR_PROVIDER", &c.CalendarProvider)
	str("CALDAV_ENDPOINT", &c.CalDAV.Endpoint)
	str("CALDAV_USERNAME", &c.CalDAV.Username)
	str("CALDAV_PASSWORD", &c.CalDAV.Password)
	str("ICS_STORAGE", &c.ICSStorage)
	str("ICS_STORAGE_DIR", &c.ICSStorageDir)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_REGION", &c.S3.Region)
	str("S3_ACCESS_KEY", &c.S3.AccessKey)
	str("S3_SECRET_KEY", &c.S3.SecretKey)
	str("DEV_NOTIFY_WEBHOOK_URL", &c.DevNotifyWebhookURL)
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	for _, f := range []struct {
		key   string
		value int64
	}{
		{"max_ics_size_bytes", c.MaxICSSizeBytes},
		{"url_ics_source_timeout_s", int64(c.ICSSourceTimeoutSec)},
		{"max_synchronizations_per_day", int64(c.MaxSynchronizationsPerDay)},
		{"scheduled_sync_timeout_sec", int64(c.ScheduledSyncTimeoutSec)},
		{"scheduled_sync_workers", int64(c.ScheduledSyncWorkers)},
		{"google_api_batch_size", int64(c.GoogleAPIBatchSize)},
	} {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.key, f.value))
		}
	}
	if _, err := cron.ParseStandard(c.ScheduledSyncCron); err != nil {
		errs = append(errs, fmt.Errorf("scheduled_sync_cron_schedule %q: %w", c.ScheduledSyncCron, err))
	}

	switch c.CalendarProvider {
	case ProviderGoogle, ProviderCalDAV:
	default:
		errs = append(errs, fmt.Errorf("unknown calendar_provider %q", c.CalendarProvider))
	}
	switch c.ICSStorage {
	case StorageNone, StorageLocal:
	case StorageS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 bucket is required when ics_storage is s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ics_storage %q", c.ICSStorage))
	}
	return errors.Join(errs...)
}

func (c Config) ICSSourceTimeout() time.Duration {
	return time.Duration(c.ICSSourceTimeoutSec) * time.Second
}

func (c Config) ScheduledSyncTimeout() time.Duration {
	return time.Duration(c.ScheduledSyncTimeoutSec) * time.Second
}
