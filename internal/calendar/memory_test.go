package calendar

import (
	"context"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
	"testing"
	"time"
)

func event(t *testing.T, start time.Time, d time.Duration, title string) models.Event {
	t.Helper()
	ev, err := models.NewEvent(models.EventParams{Start: start, End: start.Add(d), Title: title})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return ev
}

func TestMemoryManagerOwnership(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryManager(nil)

	foreign := m.Seed(event(t, now.Add(time.Hour), time.Hour, "personal"), "")
	other := m.Seed(event(t, now.Add(time.Hour), time.Hour, "other profile"), "p2")

	if err := m.CreateEvents(ctx, []models.Event{
		event(t, now.Add(-2*time.Hour), time.Hour, "past"),
		event(t, now.Add(time.Hour), time.Hour, "future"),
	}, "p1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := m.GetEventIDsForProfile(ctx, "p1", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("listed %d events, want 2", len(all))
	}

	future, err := m.GetEventIDsForProfile(ctx, "p1", ListOptions{MinEnd: &now})
	if err != nil {
		t.Fatalf("list future: %v", err)
	}
	if len(future) != 1 {
		t.Fatalf("listed %d future events, want 1", len(future))
	}

	if err := m.DeleteEvents(ctx, append(all, "unknown-id")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	left := m.Events()
	if len(left) != 2 || left[0].ID != foreign || left[1].ID != other {
		t.Errorf("remaining events = %+v", left)
	}
}

func TestMemoryManagerMinEndIsStrict(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryManager(nil)
	m.Seed(event(t, now.Add(-time.Hour), time.Hour, "ends now"), "p1")

	ids, _ := m.GetEventIDsForProfile(ctx, "p1", ListOptions{MinEnd: &now})
	if len(ids) != 0 {
		t.Errorf("event ending exactly at MinEnd was listed")
	}
}

func TestCreateLimit(t *testing.T) {
	m := NewMemoryManager(nil)
	evs := make([]models.Event, MaxEventsPerCreate+1)
	if err := m.CreateEvents(context.Background(), evs, "p1"); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestChunk(t *testing.T) {
	got := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != 5 {
		t.Errorf("Chunk = %v", got)
	}
	if Chunk([]int(nil), 2) != nil {
		t.Error("Chunk(nil) should be nil")
	}
}

func TestFindCalendar(t *testing.T) {
	p := NewMemoryProvider(nil)
	created, err := p.CreateCalendar(context.Background(), "u1", "acc1", NewCalendar{Title: "School"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	cals, _ := p.ListCalendars(context.Background(), "u1", "acc1")
	if _, err := FindCalendar(cals, created.ID); err != nil {
		t.Errorf("find created calendar: %v", err)
	}
	if _, err := FindCalendar(cals, "missing"); !apperr.Is(err, apperr.TargetCalendarNotFound) {
		t.Errorf("err = %v, want TargetCalendarNotFound", err)
	}
}
