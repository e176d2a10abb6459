package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kestrelbot/kestrel/internal/plugin"
)

type captureHost struct {
	mu      sync.Mutex
	replies []string
}

func (h *captureHost) Reply(target, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies = append(h.replies, text)
}

func (h *captureHost) Nick() string { return "kestrel" }

func (h *captureHost) Channels() []string { return nil }

func TestQueryAbstract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "golang" {
			t.Errorf("Expected query golang, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"Heading": "Go",
			"AbstractText": "Go is an open source programming language.",
			"AbstractURL": "https://golang.org"
		}`))
	}))
	defer srv.Close()

	p := New(map[string]string{"base_url": srv.URL})
	host := &captureHost{}

	err := p.query(context.Background(), plugin.Invocation{Host: host, Target: "#bots", Sender: "alice", Args: "golang"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if len(host.replies) != 1 {
		t.Fatalf("Expected 1 reply, got %d", len(host.replies))
	}
	if !strings.Contains(host.replies[0], "open source programming language") ||
		!strings.Contains(host.replies[0], "golang.org") {
		t.Errorf("Unexpected reply: %q", host.replies[0])
	}
}

func TestQueryFallsBackToRelatedTopic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"AbstractText": "",
			"RelatedTopics": [{"Text": "Kestrel - a small falcon.", "FirstURL": "https://example.org/kestrel"}]
		}`))
	}))
	defer srv.Close()

	p := New(map[string]string{"base_url": srv.URL})
	host := &captureHost{}

	if err := p.query(context.Background(), plugin.Invocation{Host: host, Target: "#bots", Sender: "alice", Args: "kestrel"}); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(host.replies) != 1 || !strings.Contains(host.replies[0], "small falcon") {
		t.Errorf("Expected related-topic reply, got %v", host.replies)
	}
}

func TestQueryNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"AbstractText": "", "RelatedTopics": []}`))
	}))
	defer srv.Close()

	p := New(map[string]string{"base_url": srv.URL})
	host := &captureHost{}

	if err := p.query(context.Background(), plugin.Invocation{Host: host, Target: "#bots", Sender: "alice", Args: "xyzzy"}); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(host.replies) != 1 || !strings.Contains(host.replies[0], "no results") {
		t.Errorf("Expected no-results reply, got %v", host.replies)
	}
}
