// Package ics fetches and parses iCalendar feeds.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syncademic/internal/apperr"
	"time"
)

const (
	DefaultMaxBytes = 1 << 20
	DefaultTimeout  = 10 * time.Second
)

// Source produces the raw text of an ICS feed.
type Source interface {
	Get(ctx context.Context) (string, error)
}

// URLSource downloads a feed over HTTP, enforcing a size cap while
// streaming. webcal:// URLs are rewritten to http://.
type URLSource struct {
	url      string
	client   *http.Client
	maxBytes int64
}

// URLOption configures a URLSource.
type URLOption func(*URLSource)

// WithHTTPClient replaces the client; its Timeout still applies.
func WithHTTPClient(c *http.Client) URLOption {
	return func(s *URLSource) { s.client = c }
}

// WithTimeout sets the whole-request timeout.
func WithTimeout(d time.Duration) URLOption {
	return func(s *URLSource) {
		c := *s.client
		c.Timeout = d
		s.client = &c
	}
}

// WithMaxBytes sets the size cap.
func WithMaxBytes(n int64) URLOption {
	return func(s *URLSource) { s.maxBytes = n }
}

// NewURLSource validates rawURL and returns a source for it.
func NewURLSource(rawURL string, opts ...URLOption) (*URLSource, error) {
	normalized, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	s := &URLSource{
		url:      normalized,
		client:   &http.Client{Timeout: DefaultTimeout},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func normalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rest, ok := cutPrefixFold(rawURL, "webcal://"); ok {
		rawURL = "http://" + rest
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", apperr.Wrap(apperr.IcsSource, err, "invalid ICS URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.New(apperr.IcsSource, "ICS URL must be http, https or webcal: %q", redactURL(rawURL))
	}
	return u.String(), nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// URL returns the normalized URL.
func (s *URLSource) URL() string { return s.url }

// Get downloads the feed. The body is decoded as UTF-8 with invalid
// sequences dropped.
func (s *URLSource) Get(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.IcsSource, err, "couldn't build ICS request")
	}
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9")
	req.Header.Set("User-Agent", "syncademic/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.IcsSource, err, "couldn't fetch ICS")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.New(apperr.IcsSource, "couldn't fetch ICS: server answered %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "text") {
		return "", apperr.New(apperr.IcsSource, "ICS URL returned content type %q", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > s.maxBytes {
			return "", tooLarge(s.maxBytes)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return "", apperr.Wrap(apperr.IcsSource, err, "couldn't read ICS body")
	}
	if int64(len(body)) > s.maxBytes {
		return "", tooLarge(s.maxBytes)
	}
	return strings.ToValidUTF8(string(body), ""), nil
}

func tooLarge(limit int64) error {
	return apperr.New(apperr.IcsSource, "ICS file is too large (limit %d bytes)", limit)
}

// FileSource reads a feed from disk.
type FileSource struct {
	Path     string
	MaxBytes int64
}

func (s FileSource) Get(ctx context.Context) (string, error) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperr.New(apperr.IcsSource, "ICS file %s does not exist", s.Path)
		}
		return "", apperr.Wrap(apperr.IcsSource, err, "couldn't open ICS file")
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", apperr.Wrap(apperr.IcsSource, err, fmt.Sprintf("couldn't read %s", s.Path))
	}
	if int64(len(body)) > limit {
		return "", tooLarge(limit)
	}
	return strings.ToValidUTF8(string(body), ""), nil
}

// StringSource serves a feed held in memory.
type StringSource struct {
	Text string
}

func (s StringSource) Get(context.Context) (string, error) {
	return s.Text, nil
}

// redactURL keeps the scheme and host of u, hiding tokens carried in
// paths or query strings.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
