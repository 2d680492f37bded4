package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"syncademic/internal/events"
	"testing"
	"time"
)

type recordingStore struct {
	keys []string
	err  error
}

func (s *recordingStore) Save(_ context.Context, key, ics string, _ map[string]string) error {
	s.keys = append(s.keys, key)
	return s.err
}

type recordingCounter struct{ users []string }

func (c *recordingCounter) IncrementSyncCount(_ context.Context, userID, _ string) (int, error) {
	c.users = append(c.users, userID)
	return len(c.users), nil
}

type recordingNotifier struct{ types []events.Type }

func (n *recordingNotifier) Notify(_ context.Context, ev events.Event) error {
	n.types = append(n.types, ev.EventType())
	return nil
}

func testDeps() (Deps, *recordingStore, *recordingCounter, *recordingNotifier) {
	st, c, n := &recordingStore{}, &recordingCounter{}, &recordingNotifier{}
	return Deps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Storage:  st,
		Counter:  c,
		Notifier: n,
		Now:      func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) },
	}, st, c, n
}

func TestBootstrapCoversEveryEventType(t *testing.T) {
	d, _, _, _ := testDeps()
	table := Bootstrap(d)
	for _, typ := range events.All {
		if len(table[typ]) == 0 {
			t.Errorf("no handler for %s", typ)
		}
	}
}

func TestHandlersDispatch(t *testing.T) {
	d, st, c, n := testDeps()
	bus := NewBus(d)
	ctx := context.Background()

	published := []events.Event{
		events.IcsFetched{IcsStr: "BEGIN:VCALENDAR", Metadata: map[string]string{events.MetaSyncProfileID: "p1"}},
		events.SyncSucceeded{UserID: "u1", SyncProfileID: "p1"},
		events.SyncFailed{UserID: "u1", SyncProfileID: "p1"},
		events.SyncProfileCreated{UserID: "u1", SyncProfileID: "p1"},
		events.SyncProfileDeletionFailed{UserID: "u1"},
		events.SyncProfileCreationFailed{UserID: "u1"},
		events.RulesetGenerationFailed{UserID: "u1"},
		events.UserCreated{UserID: "u1"},
	}
	for _, ev := range published {
		if err := bus.Publish(ctx, ev); err != nil {
			t.Fatalf("publish %s: %v", ev.EventType(), err)
		}
	}

	if len(st.keys) != 1 || st.keys[0] != "p1_2026-02-03T04:05:06.000000000Z.ics" {
		t.Errorf("snapshot keys = %v", st.keys)
	}
	if len(c.users) != 1 || c.users[0] != "u1" {
		t.Errorf("counter increments = %v", c.users)
	}
	if len(n.types) != 6 {
		t.Errorf("notified %v, want 6 events", n.types)
	}
}

func TestSnapshotFailureDoesNotReachPublisher(t *testing.T) {
	d, st, _, _ := testDeps()
	st.err = errors.New("disk full")
	bus := NewBus(d)
	if err := bus.Publish(context.Background(), events.IcsFetched{IcsStr: "x"}); err != nil {
		t.Fatalf("publish returned handler error: %v", err)
	}
}
