package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syncademic/internal/apperr"
	"testing"
	"time"
)

func TestWebcalRewrite(t *testing.T) {
	src, err := NewURLSource("webcal://h/p")
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if got := src.URL(); got != "http://h/p" {
		t.Errorf("URL() = %q, want %q", got, "http://h/p")
	}
}

func TestNewURLSourceRejectsSchemes(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/a.ics", "file:///etc/passwd", "not a url", ""} {
		if _, err := NewURLSource(raw); !apperr.Is(err, apperr.IcsSource) {
			t.Errorf("NewURLSource(%q) err = %v, want IcsSourceError", raw, err)
		}
	}
}

func TestURLSourceGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n\xff"))
	}))
	defer srv.Close()

	src, err := NewURLSource(srv.URL)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	got, err := src.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n" {
		t.Errorf("body = %q, invalid UTF-8 should be dropped", got)
	}
}

func TestURLSourceGetRejections(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}},
		{"bad content type", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("BEGIN:VCALENDAR"))
		}},
		{"content length too large", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/calendar")
			w.Header().Set("Content-Length", "2048")
			w.Write([]byte(strings.Repeat("x", 2048)))
		}},
		{"streamed body too large", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/calendar")
			flusher := w.(http.Flusher)
			for i := 0; i < 8; i++ {
				w.Write([]byte(strings.Repeat("x", 512)))
				flusher.Flush()
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src, err := NewURLSource(srv.URL, WithMaxBytes(1024))
			if err != nil {
				t.Fatalf("new source: %v", err)
			}
			body, err := src.Get(context.Background())
			if !apperr.Is(err, apperr.IcsSource) {
				t.Fatalf("err = %v, want IcsSourceError", err)
			}
			if len(body) > 1024 {
				t.Errorf("returned %d bytes over the cap", len(body))
			}
		})
	}
}

func TestURLSourceTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	src, err := NewURLSource(srv.URL, WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, err := src.Get(context.Background()); !apperr.Is(err, apperr.IcsSource) {
		t.Fatalf("err = %v, want IcsSourceError", err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.ics")
	if err := os.WriteFile(path, []byte("BEGIN:VCALENDAR"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := FileSource{Path: path}.Get(context.Background())
	if err != nil || got != "BEGIN:VCALENDAR" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if _, err := (FileSource{Path: path, MaxBytes: 4}).Get(context.Background()); !apperr.Is(err, apperr.IcsSource) {
		t.Errorf("capped read err = %v, want IcsSourceError", err)
	}
	if _, err := (FileSource{Path: path + ".missing"}).Get(context.Background()); !apperr.Is(err, apperr.IcsSource) {
		t.Errorf("missing file err = %v, want IcsSourceError", err)
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://edt.example.com/private/abc123.ics?token=secret")
	if got != "https://edt.example.com/...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
}
