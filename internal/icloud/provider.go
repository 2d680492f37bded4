package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"syncademic/internal/apperr"
	"syncademic/internal/calendar"
	"syncademic/internal/profile"

	"github.com/emersion/go-webdav/caldav"
)

// Provider serves calendars of a single CalDAV account configured with
// basic-auth credentials (an app-specific password on iCloud).
type Provider struct {
	logger     *slog.Logger
	endpoint   string
	username   string
	httpClient *http.Client
	workers    int
}

func NewProvider(logger *slog.Logger, endpoint, username, password string, workers int, base http.RoundTripper) *Provider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Provider{
		logger:     logger,
		endpoint:   endpoint,
		username:   username,
		httpClient: newHTTPClient(username, password, base),
		workers:    workers,
	}
}

func (p *Provider) checkAccount(providerAccountID string) error {
	if p.username == "" || providerAccountID != p.username {
		return apperr.New(apperr.Unauthorized, "no CalDAV credentials for account %s", providerAccountID)
	}
	return nil
}

func (p *Provider) Manager(ctx context.Context, userID, providerAccountID, calendarID string) (calendar.Manager, error) {
	if err := p.checkAccount(providerAccountID); err != nil {
		return nil, err
	}
	return NewClient(p.logger, p.httpClient, p.endpoint, calendarID, p.workers)
}

func (p *Provider) IsAuthorized(ctx context.Context, userID, providerAccountID string) (bool, error) {
	return p.checkAccount(providerAccountID) == nil, nil
}

// ListCalendars discovers the account's calendar collections. The returned
// ids are collection paths.
func (p *Provider) ListCalendars(ctx context.Context, userID, providerAccountID string) ([]profile.TargetCalendar, error) {
	if err := p.checkAccount(providerAccountID); err != nil {
		return nil, err
	}
	client, err := caldav.NewClient(p.httpClient, p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	principalPath, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, classify(err, "failed to find principal path")
	}
	homeSetPath, err := client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return nil, classify(err, "failed to find calendar home set")
	}
	cals, err := client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return nil, classify(err, "failed to find calendars")
	}

	out := make([]profile.TargetCalendar, 0, len(cals))
	for _, cal := range cals {
		out = append(out, profile.TargetCalendar{
			ID:                cal.Path,
			ProviderAccountID: providerAccountID,
			Email:             providerAccountID,
			Title:             cal.Name,
			Description:       cal.Description,
		})
	}
	p.logger.Debug("Discovered CalDAV calendars", "count", len(out), "homeSet", homeSetPath)
	return out, nil
}

// CreateCalendar is not offered for CalDAV accounts; profiles must adopt an
// existing calendar.
func (p *Provider) CreateCalendar(ctx context.Context, userID, providerAccountID string, nc calendar.NewCalendar) (profile.TargetCalendar, error) {
	return profile.TargetCalendar{}, apperr.New(apperr.Validation, "creating calendars is not supported for CalDAV accounts; select an existing calendar")
}
