package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syncademic/internal/apperr"
	"syncademic/internal/calendar"
	"syncademic/internal/models"
	"testing"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// fakeAPI is a minimal Google Calendar events endpoint.
type fakeAPI struct {
	mu      sync.Mutex
	nextID  int
	events  map[string]*gcal.Event
	deletes []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{events: make(map[string]*gcal.Event)}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "calendars" && r.Method == http.MethodGet:
		if parts[1] != "cal1" {
			http.Error(w, `{"error":{"code":404,"message":"Not Found"}}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(&gcal.Calendar{Id: "cal1", Summary: "School"})
	case len(parts) == 3 && parts[2] == "events" && r.Method == http.MethodPost:
		var ev gcal.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nextID++
		ev.Id = fmt.Sprintf("g%d", f.nextID)
		f.events[ev.Id] = &ev
		json.NewEncoder(w).Encode(&ev)
	case len(parts) == 3 && parts[2] == "events" && r.Method == http.MethodGet:
		f.list(w, r)
	case len(parts) == 4 && parts[2] == "events" && r.Method == http.MethodDelete:
		id := parts[3]
		f.deletes = append(f.deletes, id)
		if _, ok := f.events[id]; !ok {
			http.Error(w, `{"error":{"code":410,"message":"Resource has been deleted"}}`, http.StatusGone)
			return
		}
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotImplemented)
	}
}

func (f *fakeAPI) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, value, _ := strings.Cut(q.Get("privateExtendedProperty"), "=")
	var minEnd time.Time
	if tm := q.Get("timeMin"); tm != "" {
		minEnd, _ = time.Parse(time.RFC3339, tm)
	}

	resp := gcal.Events{}
	for i := 1; i <= f.nextID; i++ {
		ev, ok := f.events[fmt.Sprintf("g%d", i)]
		if !ok || ev.ExtendedProperties == nil || ev.ExtendedProperties.Private[key] != value {
			continue
		}
		if !minEnd.IsZero() && !eventEnd(ev).After(minEnd) {
			continue
		}
		resp.Items = append(resp.Items, &gcal.Event{Id: ev.Id})
	}
	json.NewEncoder(w).Encode(&resp)
}

func eventEnd(ev *gcal.Event) time.Time {
	if ev.End.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, ev.End.DateTime)
		return t
	}
	t, _ := time.Parse(time.DateOnly, ev.End.Date)
	return t
}

func newTestClient(t *testing.T, api http.Handler) *CalendarClient {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewCalendarClient(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), "cal1", 2,
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func mustEvent(t *testing.T, p models.EventParams) models.Event {
	t.Helper()
	ev, err := models.NewEvent(p)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return ev
}

func TestCreateListDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := newTestClient(t, api)

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	evs := []models.Event{
		mustEvent(t, models.EventParams{Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour), Title: "past"}),
		mustEvent(t, models.EventParams{Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Title: "future", Color: models.ColorGraphite}),
		mustEvent(t, models.EventParams{Start: now.AddDate(0, 0, 1), End: now.AddDate(0, 0, 2), AllDay: true, Title: "holiday"}),
	}
	if err := c.CreateEvents(ctx, evs, "p1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	api.mu.Lock()
	var future, holiday *gcal.Event
	for _, ev := range api.events {
		switch ev.Summary {
		case "future":
			future = ev
		case "holiday":
			holiday = ev
		}
	}
	api.mu.Unlock()

	if future == nil || future.ColorId != "8" || future.ExtendedProperties.Private[calendar.TagKey] != "p1" {
		t.Fatalf("future event = %+v", future)
	}
	if future.Start.DateTime != "2026-03-02T13:00:00Z" {
		t.Errorf("timed start = %q", future.Start.DateTime)
	}
	if holiday == nil || holiday.Start.Date != "2026-03-03" || holiday.End.Date != "2026-03-04" || holiday.Start.DateTime != "" {
		t.Errorf("all-day event = %+v / %+v", holiday.Start, holiday.End)
	}

	all, err := c.GetEventIDsForProfile(ctx, "p1", calendar.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d, want 3", len(all))
	}
	upcoming, err := c.GetEventIDsForProfile(ctx, "p1", calendar.ListOptions{MinEnd: &now})
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(upcoming) != 2 {
		t.Errorf("listed %d upcoming, want 2", len(upcoming))
	}
	none, _ := c.GetEventIDsForProfile(ctx, "p2", calendar.ListOptions{})
	if len(none) != 0 {
		t.Errorf("other profile sees %d events", len(none))
	}

	if err := c.DeleteEvents(ctx, append(all, "g404")); err != nil {
		t.Fatalf("delete should tolerate unknown ids: %v", err)
	}
	if len(api.events) != 0 {
		t.Errorf("%d events left after delete", len(api.events))
	}
}

func TestListRespectsLimit(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, newFakeAPI())
	now := time.Now()
	var evs []models.Event
	for i := 0; i < 5; i++ {
		evs = append(evs, mustEvent(t, models.EventParams{Start: now, End: now.Add(time.Hour), Title: "x"}))
	}
	if err := c.CreateEvents(ctx, evs, "p1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	ids, err := c.GetEventIDsForProfile(ctx, "p1", calendar.ListOptions{Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("listed %d, want 3", len(ids))
	}
}

func TestCreateEventsLimit(t *testing.T) {
	c := newTestClient(t, newFakeAPI())
	err := c.CreateEvents(context.Background(), make([]models.Event, calendar.MaxEventsPerCreate+1), "p1")
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestCalendarExists(t *testing.T) {
	c := newTestClient(t, newFakeAPI())
	ok, err := c.CalendarExists(context.Background())
	if err != nil || !ok {
		t.Fatalf("CalendarExists = %v, %v", ok, err)
	}

	c.calendarID = "gone"
	ok, err = c.CalendarExists(context.Background())
	if err != nil || ok {
		t.Fatalf("CalendarExists(gone) = %v, %v", ok, err)
	}
}

func TestClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"Forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := NewCalendarClient(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), "cal1", 2,
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.GetEventIDsForProfile(context.Background(), "p1", calendar.ListOptions{})
	if !apperr.Is(err, apperr.TargetCalendarAccessDenied) {
		t.Errorf("err = %v, want TargetCalendarAccessDenied", err)
	}
}

type memTokens struct {
	tokens map[string]*oauth2.Token
}

func (m *memTokens) GetToken(_ context.Context, userID, account string) (*oauth2.Token, error) {
	tok, ok := m.tokens[userID+account]
	if !ok {
		return nil, apperr.New(apperr.Unauthorized, "no token")
	}
	return tok, nil
}

func (m *memTokens) SaveToken(_ context.Context, userID, account, _ string, tok *oauth2.Token) error {
	m.tokens[userID+account] = tok
	return nil
}

func TestProviderAuthorization(t *testing.T) {
	ctx := context.Background()
	tokens := &memTokens{tokens: map[string]*oauth2.Token{
		"u1me@example.com": {AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)},
	}}
	p := NewProvider(slog.New(slog.NewTextHandler(io.Discard, nil)), OAuthConfig("id", "secret", ""), tokens, 50)

	if ok, err := p.IsAuthorized(ctx, "u1", "me@example.com"); err != nil || !ok {
		t.Errorf("IsAuthorized = %v, %v", ok, err)
	}
	if ok, err := p.IsAuthorized(ctx, "u1", "other@example.com"); err != nil || ok {
		t.Errorf("IsAuthorized(other) = %v, %v", ok, err)
	}
	if _, err := p.Manager(ctx, "u1", "other@example.com", "cal1"); !apperr.Is(err, apperr.Unauthorized) {
		t.Errorf("Manager err = %v, want Unauthorized", err)
	}
}

func TestAuthorizeRejectsRedirect(t *testing.T) {
	tokens := &memTokens{tokens: map[string]*oauth2.Token{}}
	err := Authorize(context.Background(), OAuthConfig("id", "secret", ""), tokens,
		[]string{"https://app.example.com/callback"}, "u1", "me@example.com", "code", "https://evil.example.com/")
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
