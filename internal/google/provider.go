package google

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"syncademic/internal/apperr"
	"syncademic/internal/calendar"
	"syncademic/internal/models"
	"syncademic/internal/profile"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// ProviderName is recorded on stored authorizations.
const ProviderName = "google"

// TokenStore persists OAuth tokens per user and provider account.
type TokenStore interface {
	// GetToken returns an apperr.Unauthorized error when no token is stored.
	GetToken(ctx context.Context, userID, providerAccountID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, userID, providerAccountID, provider string, tok *oauth2.Token) error
}

// Provider builds authenticated Google calendar clients from stored tokens.
type Provider struct {
	logger    *slog.Logger
	config    *oauth2.Config
	tokens    TokenStore
	batchSize int
	// extra options, used by tests to point at a fake API.
	opts []option.ClientOption
}

func NewProvider(logger *slog.Logger, config *oauth2.Config, tokens TokenStore, batchSize int, opts ...option.ClientOption) *Provider {
	return &Provider{logger: logger, config: config, tokens: tokens, batchSize: batchSize, opts: opts}
}

// clientOptions authenticates requests with the stored token.
func (p *Provider) clientOptions(ctx context.Context, userID, providerAccountID string) ([]option.ClientOption, error) {
	tok, err := p.tokens.GetToken(ctx, userID, providerAccountID)
	if err != nil {
		return nil, err
	}
	ts := &savingTokenSource{
		base:    p.config.TokenSource(context.WithoutCancel(ctx), tok),
		last:    tok.AccessToken,
		save:    func(t *oauth2.Token) error { return p.tokens.SaveToken(ctx, userID, providerAccountID, ProviderName, t) },
		logger:  p.logger,
		account: providerAccountID,
	}
	return append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, p.opts...), nil
}

func (p *Provider) service(ctx context.Context, userID, providerAccountID string) (*gcal.Service, error) {
	opts, err := p.clientOptions(ctx, userID, providerAccountID)
	if err != nil {
		return nil, err
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

func (p *Provider) Manager(ctx context.Context, userID, providerAccountID, calendarID string) (calendar.Manager, error) {
	opts, err := p.clientOptions(ctx, userID, providerAccountID)
	if err != nil {
		return nil, err
	}
	return NewCalendarClient(ctx, p.logger, calendarID, p.batchSize, opts...)
}

func (p *Provider) IsAuthorized(ctx context.Context, userID, providerAccountID string) (bool, error) {
	_, err := p.tokens.GetToken(ctx, userID, providerAccountID)
	if apperr.Is(err, apperr.Unauthorized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListCalendars returns the calendars the account can write to.
func (p *Provider) ListCalendars(ctx context.Context, userID, providerAccountID string) ([]profile.TargetCalendar, error) {
	svc, err := p.service(ctx, userID, providerAccountID)
	if err != nil {
		return nil, err
	}

	var out []profile.TargetCalendar
	err = svc.CalendarList.List().Context(ctx).Pages(ctx, func(list *gcal.CalendarList) error {
		for _, item := range list.Items {
			if item.AccessRole != "owner" && item.AccessRole != "writer" {
				continue
			}
			out = append(out, profile.TargetCalendar{
				ID:                item.Id,
				ProviderAccountID: providerAccountID,
				Email:             providerAccountID,
				Title:             item.Summary,
				Description:       item.Description,
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to list calendars")
	}
	return out, nil
}

// CreateCalendar creates a secondary calendar, optionally colored.
func (p *Provider) CreateCalendar(ctx context.Context, userID, providerAccountID string, nc calendar.NewCalendar) (profile.TargetCalendar, error) {
	svc, err := p.service(ctx, userID, providerAccountID)
	if err != nil {
		return profile.TargetCalendar{}, err
	}

	created, err := svc.Calendars.Insert(&gcal.Calendar{Summary: nc.Title, Description: nc.Description}).Context(ctx).Do()
	if err != nil {
		return profile.TargetCalendar{}, classify(err, "failed to create calendar")
	}
	if hex, ok := paletteHex[nc.Color]; ok {
		entry := &gcal.CalendarListEntry{BackgroundColor: hex, ForegroundColor: "#ffffff"}
		if _, err := svc.CalendarList.Patch(created.Id, entry).ColorRgbFormat(true).Context(ctx).Do(); err != nil {
			p.logger.Warn("Failed to color new calendar", "calendarID", created.Id, "error", err)
		}
	}

	p.logger.Info("Created Google calendar", "calendarID", created.Id, "title", nc.Title)
	return profile.TargetCalendar{
		ID:                created.Id,
		ProviderAccountID: providerAccountID,
		Email:             providerAccountID,
		Title:             created.Summary,
		Description:       created.Description,
	}, nil
}

// paletteHex holds the event palette colors as RGB, for calendar entries
// whose own color ids use a different palette.
var paletteHex = map[models.Color]string{
	models.ColorLavender:  "#7986cb",
	models.ColorSage:      "#33b679",
	models.ColorGrape:     "#8e24aa",
	models.ColorTangerine: "#f4511e",
	models.ColorBanana:    "#f6bf26",
	models.ColorFlamingo:  "#e67c73",
	models.ColorPeacock:   "#039be5",
	models.ColorGraphite:  "#616161",
	models.ColorBlueberry: "#3f51b5",
	models.ColorBasil:     "#0b8043",
	models.ColorTomato:    "#d50000",
}

// savingTokenSource writes refreshed tokens back to the store.
type savingTokenSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	last    string
	save    func(*oauth2.Token) error
	logger  *slog.Logger
	account string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, err, "google authorization expired or revoked")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.save(tok); err != nil {
			s.logger.Warn("Failed to persist refreshed token", "providerAccountID", s.account, "error", err)
		}
	}
	return tok, nil
}

// OAuthConfig returns the web-server flow configuration.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gcal.CalendarScope},
		Endpoint:     google.Endpoint,
	}
}

// Authorize exchanges an authorization code and stores the token for the
// user's provider account. redirectURI must be in allowed.
func Authorize(ctx context.Context, config *oauth2.Config, tokens TokenStore, allowed []string, userID, providerAccountID, authCode, redirectURI string) error {
	if len(allowed) > 0 && !slices.Contains(allowed, redirectURI) {
		return apperr.New(apperr.Validation, "redirect URI %q is not allowed", redirectURI)
	}
	if authCode == "" || providerAccountID == "" {
		return apperr.New(apperr.Validation, "authorization code and provider account are required")
	}

	cfg := *config
	cfg.RedirectURL = redirectURI
	tok, err := cfg.Exchange(ctx, authCode)
	if err != nil {
		return apperr.Wrap(apperr.Unauthorized, err, "unable to exchange authorization code")
	}
	if tok.RefreshToken == "" {
		return apperr.New(apperr.Unauthorized, "google did not return a refresh token; revoke access and retry")
	}
	return tokens.SaveToken(ctx, userID, providerAccountID, ProviderName, tok)
}
