// Package notify forwards noteworthy domain events to developers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"syncademic/internal/events"
	"time"
)

// Notifier receives a domain event worth a developer's attention.
type Notifier interface {
	Notify(ctx context.Context, ev events.Event) error
}

// Noop drops every notification.
type Noop struct{}

func (Noop) Notify(context.Context, events.Event) error { return nil }

// Log writes notifications to a logger. Failures are logged at warn level,
// everything else at info.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, ev events.Event) error {
	level := slog.LevelInfo
	switch ev.(type) {
	case events.SyncFailed, events.SyncProfileDeletionFailed,
		events.SyncProfileCreationFailed, events.RulesetGenerationFailed:
		level = slog.LevelWarn
	}
	l.Logger.Log(ctx, level, "Developer notification", "eventType", ev.EventType(), "event", fmt.Sprintf("%+v", summarize(ev)))
	return nil
}

// summarize drops bulky fields before an event leaves the process.
func summarize(ev events.Event) events.Event {
	switch e := ev.(type) {
	case events.SyncFailed:
		if len(e.Traceback) > 4000 {
			e.Traceback = e.Traceback[:4000] + "..."
		}
		return e
	case events.IcsFetched:
		e.IcsStr = fmt.Sprintf("(%d bytes)", len(e.IcsStr))
		return e
	}
	return ev
}

// Webhook posts notifications as JSON to a URL.
type Webhook struct {
	url        string
	httpClient *http.Client
}

type Option func(*Webhook)

func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		w.httpClient = c
	}
}

func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type webhookPayload struct {
	Type   events.Type  `json:"type"`
	Event  events.Event `json:"event"`
	SentAt time.Time    `json:"sent_at"`
}

func (w *Webhook) Notify(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(webhookPayload{Type: ev.EventType(), Event: summarize(ev), SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}
