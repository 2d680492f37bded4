// Package calendar defines the destination calendar ports used by the
// sync engine, plus an in-memory implementation for tests and dry runs.
//
// Every event written through a Manager is tagged with the owning sync
// profile id; listing filters on that tag, so a profile never sees or
// touches events it did not create.
package calendar

import (
	"context"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
	"syncademic/internal/profile"
	"time"
)

const (
	// TagKey is the private property holding the owning profile id.
	TagKey = "syncademic"

	MaxEventsPerCreate = 1000
	DefaultListLimit   = 1000
	DefaultBatchSize   = 50
)

// ListOptions narrows GetEventIDsForProfile.
type ListOptions struct {
	// MinEnd keeps only events ending strictly after it, compared in UTC.
	MinEnd *time.Time
	// Limit caps the number of ids; DefaultListLimit when zero.
	Limit int
}

// Manager reads and writes one destination calendar.
type Manager interface {
	CreateEvents(ctx context.Context, evs []models.Event, syncProfileID string) error
	GetEventIDsForProfile(ctx context.Context, syncProfileID string, opts ListOptions) ([]string, error)
	DeleteEvents(ctx context.Context, ids []string) error
	CalendarExists(ctx context.Context) (bool, error)
}

// NewCalendar describes a destination calendar to create.
type NewCalendar struct {
	Title       string
	Description string
	Color       models.Color
}

// Provider hands out authenticated managers for a user's provider account.
type Provider interface {
	Manager(ctx context.Context, userID, providerAccountID, calendarID string) (Manager, error)
	IsAuthorized(ctx context.Context, userID, providerAccountID string) (bool, error)
	ListCalendars(ctx context.Context, userID, providerAccountID string) ([]profile.TargetCalendar, error)
	CreateCalendar(ctx context.Context, userID, providerAccountID string, nc NewCalendar) (profile.TargetCalendar, error)
}

// CheckCreateLimit rejects oversized create calls.
func CheckCreateLimit(n int) error {
	if n > MaxEventsPerCreate {
		return apperr.New(apperr.Validation, "refusing to create %d events in one call (max %d)", n, MaxEventsPerCreate)
	}
	return nil
}

// Chunk splits items into slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}

// FindCalendar returns the calendar with id among cals.
func FindCalendar(cals []profile.TargetCalendar, id string) (profile.TargetCalendar, error) {
	for _, c := range cals {
		if c.ID == id {
			return c, nil
		}
	}
	return profile.TargetCalendar{}, apperr.New(apperr.TargetCalendarNotFound, "calendar %s not found", id)
}

// EffectiveLimit applies the default limit.
func (o ListOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}
