// Package handlers binds domain events to their side effects and builds the
// application's event bus.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"syncademic/internal/eventbus"
	"syncademic/internal/events"
	"syncademic/internal/notify"
	"syncademic/internal/storage"
	"time"
)

// SyncCounter is the part of the rate limiter the handlers drive.
type SyncCounter interface {
	IncrementSyncCount(ctx context.Context, userID, day string) (int, error)
}

type Deps struct {
	Logger   *slog.Logger
	Storage  storage.ICSStore
	Counter  SyncCounter
	Notifier notify.Notifier
	// Now defaults to time.Now.
	Now func() time.Time
}

// Bootstrap returns the handler table. Every type in events.All gets at
// least one handler.
func Bootstrap(d Deps) map[events.Type][]eventbus.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Storage == nil {
		d.Storage = storage.Noop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Noop{}
	}

	notifyDev := func(ctx context.Context, ev events.Event) error {
		return d.Notifier.Notify(ctx, ev)
	}

	return map[events.Type][]eventbus.Handler{
		events.TypeIcsFetched:                {storeSnapshot(d)},
		events.TypeSyncSucceeded:             {incrementCounter(d)},
		events.TypeSyncFailed:                {notifyDev},
		events.TypeSyncProfileDeletionFailed: {notifyDev},
		events.TypeSyncProfileCreationFailed: {notifyDev},
		events.TypeRulesetGenerationFailed:   {notifyDev},
		events.TypeUserCreated:               {notifyDev},
		events.TypeSyncProfileCreated:        {notifyDev},
	}
}

// NewBus wires and freezes the application bus.
func NewBus(d Deps) *eventbus.Bus {
	return eventbus.New(d.Logger, Bootstrap(d))
}

func storeSnapshot(d Deps) eventbus.Handler {
	return func(ctx context.Context, ev events.Event) error {
		e, ok := ev.(events.IcsFetched)
		if !ok {
			return fmt.Errorf("unexpected event %T", ev)
		}
		key := storage.SnapshotKey(e.Metadata[events.MetaSyncProfileID], d.Now())
		if err := d.Storage.Save(ctx, key, e.IcsStr, e.Metadata); err != nil {
			return err
		}
		d.Logger.Debug("Stored ICS snapshot", "key", key, "bytes", len(e.IcsStr))
		return nil
	}
}

func incrementCounter(d Deps) eventbus.Handler {
	return func(ctx context.Context, ev events.Event) error {
		e, ok := ev.(events.SyncSucceeded)
		if !ok {
			return fmt.Errorf("unexpected event %T", ev)
		}
		n, err := d.Counter.IncrementSyncCount(ctx, e.UserID, "")
		if err != nil {
			return err
		}
		d.Logger.Debug("Incremented daily sync count", "userID", e.UserID, "count", n)
		return nil
	}
}
