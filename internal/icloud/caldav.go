package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"syncademic/internal/apperr"
	"syncademic/internal/calendar"
	"syncademic/internal/models"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultEndpoint is used when no CalDAV endpoint is configured.
	DefaultEndpoint = "https://caldav.icloud.com/"

	// PropTag marks events created by a sync profile.
	PropTag = "X-SYNCADEMIC"

	productID = "-//syncademic//EN"
	propColor = "COLOR"

	// openRangeSpan closes a time-range query that only has a lower bound.
	openRangeSpan = 100 * 365 * 24 * time.Hour
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "syncademic/1.0")
	return t.Transport.RoundTrip(req)
}

func newHTTPClient(username, password string, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: &customTransport{Username: username, Password: password, Transport: base}}
}

// CalDAVClient manages the events of one CalDAV calendar collection.
type CalDAVClient struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	calendarPath string
	workers      int
}

// NewClient creates a client for the calendar collection at calendarPath,
// as returned by calendar discovery.
func NewClient(logger *slog.Logger, httpClient *http.Client, endpoint, calendarPath string, workers int) (*CalDAVClient, error) {
	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	if workers <= 0 {
		workers = calendar.DefaultBatchSize
	}
	return &CalDAVClient{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		calendarPath: calendarPath,
		workers:      workers,
	}, nil
}

// CreateEvents writes each event as its own calendar object, tagged with
// the owning profile.
func (c *CalDAVClient) CreateEvents(ctx context.Context, evs []models.Event, syncProfileID string) error {
	if err := calendar.CheckCreateLimit(len(evs)); err != nil {
		return err
	}

	now := time.Now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, ev := range evs {
		uid := uuid.NewString()
		cal := toCalendar(ev, uid, syncProfileID, now)
		objectPath := path.Join(c.calendarPath, uid+".ics")
		g.Go(func() error {
			if _, err := c.caldavClient.PutCalendarObject(gctx, objectPath, cal); err != nil {
				return classify(err, "failed to create event on CalDAV server")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Info("Successfully created events on CalDAV server", "count", len(evs), "calendar", c.calendarPath, "syncProfileID", syncProfileID)
	return nil
}

// GetEventIDsForProfile returns object paths of the profile's events.
// The server filters on the time range only; go-webdav does not encode
// property filters, so ownership is checked locally on the returned data.
func (c *CalDAVClient) GetEventIDsForProfile(ctx context.Context, syncProfileID string, opts calendar.ListOptions) ([]string, error) {
	filter := caldav.CompFilter{Name: ical.CompEvent}
	if opts.MinEnd != nil {
		// Both ends of a time-range are always sent; a zero End would
		// make the range empty.
		filter.Start = opts.MinEnd.UTC()
		filter.End = filter.Start.Add(openRangeSpan)
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{filter},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, classify(err, "failed to query CalDAV calendar")
	}

	limit := opts.EffectiveLimit()
	var ids []string
	for _, obj := range objects {
		if !ownedBy(obj.Data, syncProfileID, opts.MinEnd) {
			continue
		}
		ids = append(ids, obj.Path)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// DeleteEvents removes calendar objects by path. Missing objects are ignored.
func (c *CalDAVClient) DeleteEvents(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, id := range ids {
		g.Go(func() error {
			err := c.webdavClient.RemoveAll(gctx, id)
			if isNotFound(err) {
				c.logger.Debug("Event already gone", "path", id)
				return nil
			}
			if err != nil {
				return classify(err, "failed to delete event "+id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Info("Deleted events from CalDAV server", "count", len(ids), "calendar", c.calendarPath)
	return nil
}

// CalendarExists reports whether the collection still answers PROPFIND.
func (c *CalDAVClient) CalendarExists(ctx context.Context) (bool, error) {
	_, err := c.webdavClient.Stat(ctx, c.calendarPath)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, classify(err, "failed to stat CalDAV calendar")
	}
	return true, nil
}

// toCalendar wraps ev in a VCALENDAR ready to be PUT.
func toCalendar(ev models.Event, uid, syncProfileID string, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, toICal(ev, uid, syncProfileID, stamp))
	return cal
}

// toICal converts an Event to a VEVENT component.
func toICal(ev models.Event, uid, syncProfileID string, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, ev.Title())
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	if ev.AllDay() {
		ve.Props.SetDate(ical.PropDateTimeStart, ev.Start())
		ve.Props.SetDate(ical.PropDateTimeEnd, ev.End())
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, ev.Start().UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.End().UTC())
	}

	if ev.Description() != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description())
	}
	if ev.Location() != "" {
		ve.Props.SetText(ical.PropLocation, ev.Location())
	}
	if ev.Color() != "" {
		setPlain(ve.Props, propColor, string(ev.Color()))
	}
	setPlain(ve.Props, PropTag, syncProfileID)
	return ve
}

// setPlain sets a property without a VALUE parameter. SetText would add
// VALUE=TEXT to properties go-ical does not know. value must not need
// escaping.
func setPlain(props ical.Props, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	props.Set(prop)
}

// ownedBy reports whether cal holds an event tagged with syncProfileID that
// ends strictly after minEnd.
func ownedBy(cal *ical.Calendar, syncProfileID string, minEnd *time.Time) bool {
	if cal == nil {
		return false
	}
	for _, ev := range cal.Events() {
		tag, err := ev.Props.Text(PropTag)
		if err != nil || tag != syncProfileID {
			continue
		}
		if minEnd == nil {
			return true
		}
		end, err := ev.DateTimeEnd(time.UTC)
		if err == nil && end.After(minEnd.UTC()) {
			return true
		}
	}
	return false
}

// isNotFound matches 404/410 responses. The client does not export its
// HTTP error type, so the status is matched on the message.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "410")
}

func classify(err error, msg string) error {
	s := err.Error()
	switch {
	case strings.Contains(s, "401"):
		return apperr.Wrap(apperr.Unauthorized, err, msg)
	case strings.Contains(s, "403"):
		return apperr.Wrap(apperr.TargetCalendarAccessDenied, err, msg)
	case isNotFound(err):
		return apperr.Wrap(apperr.TargetCalendarNotFound, err, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
