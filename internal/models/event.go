package models

import (
	"syncademic/internal/apperr"
	"time"
)

// Field names an editable text field of an Event.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldLocation    Field = "location"
)

// IsValid reports whether f is a known field.
func (f Field) IsValid() bool {
	switch f {
	case FieldTitle, FieldDescription, FieldLocation:
		return true
	}
	return false
}

// EventParams carries the inputs to NewEvent.
type EventParams struct {
	Start       time.Time
	End         time.Time
	AllDay      bool
	Title       string
	Description string
	Location    string
	Color       Color
}

// Event is a provider-neutral calendar event.
// It is a value: fields are unexported and every change returns a copy.
type Event struct {
	start       time.Time
	end         time.Time
	allDay      bool
	title       string
	description string
	location    string
	color       Color
}

// NewEvent validates p and returns the event.
// All-day events are normalized to midnight UTC dates and must end on
// the day after they start.
func NewEvent(p EventParams) (Event, error) {
	if p.Start.IsZero() {
		return Event{}, apperr.New(apperr.InvalidEvent, "event %q has no start", p.Title)
	}
	if p.End.IsZero() {
		return Event{}, apperr.New(apperr.InvalidEvent, "event %q has no end", p.Title)
	}
	if p.Color != "" && !p.Color.IsValid() {
		return Event{}, apperr.New(apperr.InvalidEvent, "event %q has unknown color %q", p.Title, p.Color)
	}

	start, end := p.Start, p.End
	if p.AllDay {
		start, end = toDate(start), toDate(end)
	}
	if !start.Before(end) {
		return Event{}, apperr.New(apperr.InvalidEvent, "event %q starts at %s but ends at %s", p.Title, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if p.AllDay && !end.Equal(start.AddDate(0, 0, 1)) {
		return Event{}, apperr.New(apperr.InvalidEvent, "all-day event %q spans %s to %s, want a single day", p.Title, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	return Event{
		start:       start,
		end:         end,
		allDay:      p.AllDay,
		title:       p.Title,
		description: p.Description,
		location:    p.Location,
		color:       p.Color,
	}, nil
}

func toDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e Event) Start() time.Time    { return e.start }
func (e Event) End() time.Time      { return e.end }
func (e Event) AllDay() bool        { return e.allDay }
func (e Event) Title() string       { return e.title }
func (e Event) Description() string { return e.description }
func (e Event) Location() string    { return e.location }

// Color returns the palette color, or "" when none is set.
func (e Event) Color() Color { return e.color }

// Field returns the value of a text field.
func (e Event) Field(f Field) string {
	switch f {
	case FieldTitle:
		return e.title
	case FieldDescription:
		return e.description
	case FieldLocation:
		return e.location
	}
	return ""
}

// WithField returns a copy of e with field f replaced.
func (e Event) WithField(f Field, value string) Event {
	switch f {
	case FieldTitle:
		e.title = value
	case FieldDescription:
		e.description = value
	case FieldLocation:
		e.location = value
	}
	return e
}

// WithColor returns a copy of e with its color replaced.
func (e Event) WithColor(c Color) Event {
	e.color = c
	return e
}

// Params returns the inputs that would rebuild e.
func (e Event) Params() EventParams {
	return EventParams{
		Start:       e.start,
		End:         e.end,
		AllDay:      e.allDay,
		Title:       e.title,
		Description: e.description,
		Location:    e.location,
		Color:       e.color,
	}
}
