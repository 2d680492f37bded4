package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"syncademic/internal/calendar"
	"syncademic/internal/config"
	"syncademic/internal/database"
	"syncademic/internal/google"
	"syncademic/internal/handlers"
	"syncademic/internal/icloud"
	"syncademic/internal/ics"
	"syncademic/internal/logging"
	"syncademic/internal/notify"
	"syncademic/internal/ratelimit"
	"syncademic/internal/scheduler"
	"syncademic/internal/storage"
	"syncademic/internal/store"
	"syncademic/internal/syncer"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	profiles *store.SyncProfileStore
	tokens   *store.AuthorizationStore
	limiter  *ratelimit.Limiter
	ics      *ics.Service
	provider calendar.Provider
	oauth    *oauth2.Config
	syncer   *syncer.Syncer
}

func newApp(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		profiles: store.NewSyncProfileStore(db),
		tokens:   store.NewAuthorizationStore(db),
		limiter:  ratelimit.New(store.NewSyncStatsStore(db)),
	}

	snapshots, err := newSnapshotStore(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	var notifier notify.Notifier = notify.Log{Logger: logger}
	if cfg.DevNotifyWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.DevNotifyWebhookURL)
	}
	bus := handlers.NewBus(handlers.Deps{
		Logger:   logger,
		Storage:  snapshots,
		Counter:  a.limiter,
		Notifier: notifier,
	})

	a.ics = ics.NewService(logger, bus, ics.Parser{}, ics.Config{
		MaxBytes: cfg.MaxICSSizeBytes,
		Timeout:  cfg.ICSSourceTimeout(),
	})

	a.oauth = google.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, firstOr(cfg.AllowedRedirectURIs, "urn:ietf:wg:oauth:2.0:oob"))
	switch {
	case c.Bool("dry-run"):
		logger.Info("Performing a dry run. Destination changes stay in memory.")
		a.provider = calendar.NewMemoryProvider(logger)
	case cfg.CalendarProvider == config.ProviderCalDAV:
		a.provider = icloud.NewProvider(logger, cfg.CalDAV.Endpoint, cfg.CalDAV.Username, cfg.CalDAV.Password, 0, nil)
	default:
		a.provider = google.NewProvider(logger, a.oauth, a.tokens, cfg.GoogleAPIBatchSize)
	}

	a.syncer = syncer.NewSyncer(syncer.Deps{
		Logger:                    logger,
		Profiles:                  a.profiles,
		Users:                     store.NewUserStore(db),
		Limiter:                   a.limiter,
		ICS:                       a.ics,
		Provider:                  a.provider,
		Bus:                       bus,
		MaxSynchronizationsPerDay: cfg.MaxSynchronizationsPerDay,
	})
	return a, nil
}

func (a *app) newScheduler() *scheduler.Scheduler {
	return scheduler.New(a.logger, a.profiles, a.syncer, scheduler.Options{
		Spec:    a.cfg.ScheduledSyncCron,
		Workers: a.cfg.ScheduledSyncWorkers,
		Timeout: a.cfg.ScheduledSyncTimeout(),
	})
}

func (a *app) Close() error {
	return a.db.Close()
}

func newSnapshotStore(cfg config.Config) (storage.ICSStore, error) {
	switch cfg.ICSStorage {
	case config.StorageLocal:
		s, err := storage.NewLocalStore(cfg.ICSStorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare snapshot directory: %w", err)
		}
		return s, nil
	case config.StorageS3:
		return storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}), nil
	}
	return storage.Noop{}, nil
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}

// withApp wires the application for one command and closes it afterwards.
func withApp(fn func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := newApp(c)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a)
	}
}
