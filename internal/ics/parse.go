package ics

import (
	"errors"
	"io"
	"strings"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
	"time"

	"github.com/emersion/go-ical"
)

// recurrenceProps cause a feed to be rejected: expansion is not supported.
var recurrenceProps = []string{"RRULE", "RDATE", "EXDATE"}

// Parser turns ICS text into events.
type Parser struct {
	// Location resolves floating date-times. Defaults to UTC.
	Location *time.Location
}

// TryParse parses every VEVENT of every VCALENDAR in text. A recurring
// event or an invalid event fails the whole feed. An all-day VEVENT that
// spans several days yields one event per day.
func (p Parser) TryParse(text string) ([]models.Event, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.New(apperr.IcsParsing, "ICS input is empty")
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	dec := ical.NewDecoder(strings.NewReader(text))
	var out []models.Event
	calendars := 0
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.IcsParsing, err, "couldn't parse ICS")
		}
		calendars++

		for _, ve := range cal.Events() {
			evs, err := parseVEvent(&ve, loc)
			if err != nil {
				return nil, err
			}
			out = append(out, evs...)
		}
	}
	if calendars == 0 {
		return nil, apperr.New(apperr.IcsParsing, "ICS input contains no VCALENDAR")
	}
	return out, nil
}

func parseVEvent(ve *ical.Event, loc *time.Location) ([]models.Event, error) {
	uid, _ := ve.Props.Text(ical.PropUID)
	for _, name := range recurrenceProps {
		if ve.Props.Get(name) != nil {
			return nil, apperr.New(apperr.RecurringEvent, "event %q has %s: recurring events are not supported", uid, name)
		}
	}

	summary, err := ve.Props.Text(ical.PropSummary)
	if err != nil {
		return nil, apperr.Wrap(apperr.IcsParsing, err, "invalid SUMMARY")
	}
	description, err := ve.Props.Text(ical.PropDescription)
	if err != nil {
		return nil, apperr.Wrap(apperr.IcsParsing, err, "invalid DESCRIPTION")
	}
	location, err := ve.Props.Text(ical.PropLocation)
	if err != nil {
		return nil, apperr.Wrap(apperr.IcsParsing, err, "invalid LOCATION")
	}

	startProp := ve.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return nil, apperr.New(apperr.IcsParsing, "event %q has no DTSTART", uid)
	}
	allDay := isDateValue(startProp)

	start, err := ve.DateTimeStart(loc)
	if err != nil {
		return nil, apperr.Wrap(apperr.IcsParsing, err, "invalid DTSTART")
	}
	end, err := ve.DateTimeEnd(loc)
	if err != nil {
		return nil, apperr.Wrap(apperr.IcsParsing, err, "invalid DTEND")
	}
	if allDay && !end.After(start) && ve.Props.Get(ical.PropDateTimeEnd) == nil && ve.Props.Get(ical.PropDuration) == nil {
		// A date DTSTART without DTEND lasts one day.
		end = start.AddDate(0, 0, 1)
	}

	params := models.EventParams{
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Title:       summary,
		Description: description,
		Location:    location,
	}
	if !allDay || !end.After(start.AddDate(0, 0, 1)) {
		ev, err := models.NewEvent(params)
		if err != nil {
			return nil, apperr.Wrap(apperr.IcsParsing, err, "invalid event")
		}
		return []models.Event{ev}, nil
	}

	var out []models.Event
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		params.Start, params.End = day, day.AddDate(0, 0, 1)
		ev, err := models.NewEvent(params)
		if err != nil {
			return nil, apperr.Wrap(apperr.IcsParsing, err, "invalid event")
		}
		out = append(out, ev)
	}
	return out, nil
}

// isDateValue detects VALUE=DATE, or a date-only value without the
// parameter.
func isDateValue(prop *ical.Prop) bool {
	if prop.ValueType() == ical.ValueDate {
		return true
	}
	return !strings.Contains(prop.Value, "T")
}
