package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"syncademic/internal/apperr"
	"syncademic/internal/calendar"
	"syncademic/internal/models"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// maxPageSize is the largest page the Events.List endpoint serves.
const maxPageSize = 2500

// CalendarClient manages the events of one Google calendar.
type CalendarClient struct {
	service    *gcal.Service
	logger     *slog.Logger
	calendarID string
	batchSize  int
}

// NewCalendarClient creates a client for calendarID. Authentication comes
// from opts, usually option.WithHTTPClient with an OAuth client.
func NewCalendarClient(ctx context.Context, logger *slog.Logger, calendarID string, batchSize int, opts ...option.ClientOption) (*CalendarClient, error) {
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if batchSize <= 0 {
		batchSize = calendar.DefaultBatchSize
	}
	return &CalendarClient{service: service, logger: logger, calendarID: calendarID, batchSize: batchSize}, nil
}

// CreateEvents inserts evs, batchSize requests in flight at a time.
func (c *CalendarClient) CreateEvents(ctx context.Context, evs []models.Event, syncProfileID string) error {
	if err := calendar.CheckCreateLimit(len(evs)); err != nil {
		return err
	}

	for i, batch := range calendar.Chunk(evs, c.batchSize) {
		g, gctx := errgroup.WithContext(ctx)
		for _, ev := range batch {
			body := toGoogleEvent(ev, syncProfileID)
			g.Go(func() error {
				if _, err := c.service.Events.Insert(c.calendarID, body).Context(gctx).Do(); err != nil {
					return classify(err, "failed to insert event")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		c.logger.Debug("Inserted event batch", "calendarID", c.calendarID, "batch", i, "count", len(batch))
	}

	c.logger.Info("Successfully created events in Google Calendar", "count", len(evs), "calendarID", c.calendarID, "syncProfileID", syncProfileID)
	return nil
}

// GetEventIDsForProfile lists ids of events tagged with syncProfileID.
// MinEnd maps to timeMin, which the API applies as an exclusive lower
// bound on event end.
func (c *CalendarClient) GetEventIDsForProfile(ctx context.Context, syncProfileID string, opts calendar.ListOptions) ([]string, error) {
	limit := opts.EffectiveLimit()
	call := c.service.Events.List(c.calendarID).
		PrivateExtendedProperty(calendar.TagKey + "=" + syncProfileID).
		ShowDeleted(false).
		MaxResults(int64(min(limit, maxPageSize))).
		Fields("items(id)", "nextPageToken")
	if opts.MinEnd != nil {
		call = call.TimeMin(opts.MinEnd.UTC().Format(time.RFC3339))
	}

	var ids []string
	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, classify(err, "failed to list events")
		}
		for _, item := range resp.Items {
			ids = append(ids, item.Id)
			if len(ids) == limit {
				return ids, nil
			}
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// DeleteEvents deletes ids in batches. Already deleted or unknown ids are
// ignored.
func (c *CalendarClient) DeleteEvents(ctx context.Context, ids []string) error {
	deleted := 0
	for _, batch := range calendar.Chunk(ids, c.batchSize) {
		g, gctx := errgroup.WithContext(ctx)
		for _, id := range batch {
			g.Go(func() error {
				err := c.service.Events.Delete(c.calendarID, id).Context(gctx).Do()
				if isGone(err) {
					c.logger.Debug("Event already gone", "calendarID", c.calendarID, "eventID", id)
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
		deleted += len(batch)
	}
	c.logger.Info("Deleted events from Google Calendar", "count", deleted, "calendarID", c.calendarID)
	return nil
}

// CalendarExists reports whether the calendar can still be reached.
func (c *CalendarClient) CalendarExists(ctx context.Context) (bool, error) {
	_, err := c.service.Calendars.Get(c.calendarID).Context(ctx).Do()
	if isGone(err) {
		return false, nil
	}
	if err != nil {
		return false, classify(err, "failed to get calendar")
	}
	return true, nil
}

// toGoogleEvent converts an Event, tagging it with the owning profile.
func toGoogleEvent(ev models.Event, syncProfileID string) *gcal.Event {
	out := &gcal.Event{
		Summary:     ev.Title(),
		Description: ev.Description(),
		Location:    ev.Location(),
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{calendar.TagKey: syncProfileID},
		},
	}
	if ev.AllDay() {
		out.Start = &gcal.EventDateTime{Date: ev.Start().Format(time.DateOnly)}
		out.End = &gcal.EventDateTime{Date: ev.End().Format(time.DateOnly)}
	} else {
		out.Start = &gcal.EventDateTime{DateTime: ev.Start().Format(time.RFC3339)}
		out.End = &gcal.EventDateTime{DateTime: ev.End().Format(time.RFC3339)}
	}
	if id := ev.Color().ID(); id != "" {
		out.ColorId = id
	}
	return out
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}

// classify tags Google API and token errors with an apperr kind.
func classify(err error, msg string) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return apperr.Wrap(apperr.Unauthorized, err, "google authorization expired or revoked")
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return apperr.Wrap(apperr.Unauthorized, err, msg)
		case http.StatusForbidden:
			return apperr.Wrap(apperr.TargetCalendarAccessDenied, err, msg)
		case http.StatusNotFound, http.StatusGone:
			return apperr.Wrap(apperr.TargetCalendarNotFound, err, msg)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
