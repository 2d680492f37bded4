package ics

import (
	"context"
	"log/slog"
	"net/http"
	"syncademic/internal/eventbus"
	"syncademic/internal/events"
	"syncademic/internal/models"
	"time"
)

// Result is the outcome of a successful fetch and parse.
type Result struct {
	Events []models.Event
	RawICS string
}

// Config bounds URL fetches.
type Config struct {
	MaxBytes int64
	Timeout  time.Duration
	Client   *http.Client
}

// Service orchestrates fetch and parse and announces fetched feeds.
// It does no I/O besides the fetch itself; persisting the raw feed is the
// IcsFetched handler's job.
type Service struct {
	logger *slog.Logger
	bus    eventbus.Publisher
	parser Parser
	cfg    Config
}

func NewService(logger *slog.Logger, bus eventbus.Publisher, parser Parser, cfg Config) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Service{logger: logger, bus: bus, parser: parser, cfg: cfg}
}

// URLSource builds a source for rawURL using the service limits.
func (s *Service) URLSource(rawURL string) (*URLSource, error) {
	opts := []URLOption{WithMaxBytes(s.cfg.MaxBytes)}
	if s.cfg.Client != nil {
		opts = append(opts, WithHTTPClient(s.cfg.Client))
	}
	opts = append(opts, WithTimeout(s.cfg.Timeout))
	return NewURLSource(rawURL, opts...)
}

// TryFetchAndParse fetches src, publishes IcsFetched, then parses.
// Source and parsing errors are returned unchanged.
func (s *Service) TryFetchAndParse(ctx context.Context, src Source, metadata map[string]string) (Result, error) {
	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	if u, ok := src.(*URLSource); ok {
		if _, set := md[events.MetaSource]; !set {
			md[events.MetaSource] = u.URL()
		}
	}

	text, err := src.Get(ctx)
	if err != nil {
		s.logger.Warn("ICS fetch failed", "source", redactURL(md[events.MetaSource]), "error", err)
		return Result{}, err
	}

	if err := s.bus.Publish(ctx, events.IcsFetched{IcsStr: text, Metadata: md}); err != nil {
		s.logger.Error("Failed to publish IcsFetched", "error", err)
	}

	evs, err := s.parser.TryParse(text)
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("ICS parsed", "source", redactURL(md[events.MetaSource]), "count", len(evs))
	return Result{Events: evs, RawICS: text}, nil
}

// ValidateURL performs a live fetch and parse of rawURL.
func (s *Service) ValidateURL(ctx context.Context, rawURL string, metadata map[string]string) (Result, error) {
	src, err := s.URLSource(rawURL)
	if err != nil {
		return Result{}, err
	}
	return s.TryFetchAndParse(ctx, src, metadata)
}
