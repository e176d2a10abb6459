// Package search answers web lookups via the DuckDuckGo Instant Answer API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/kestrelbot/kestrel/internal/plugin"
)

const defaultBaseURL = "https://api.duckduckgo.com"

// Plugin answers .g queries.
type Plugin struct {
	client    *http.Client
	baseURL   string
	blacklist []string
}

// New creates the plugin. Settings: base_url (optional, for tests),
// blacklist (channels to stay quiet in).
func New(settings map[string]string) *Plugin {
	p := &Plugin{
		client:    &http.Client{Timeout: 15 * time.Second},
		baseURL:   defaultBaseURL,
		blacklist: plugin.SplitChannels(settings["blacklist"]),
	}
	if u := settings["base_url"]; u != "" {
		p.baseURL = strings.TrimRight(u, "/")
	}
	return p
}

// Register binds the .g command.
func (p *Plugin) Register(r *plugin.Registry) error {
	return r.Register(plugin.Registration{
		Name:      "search",
		Command:   "g",
		Handler:   p.query,
		Blacklist: p.blacklist,
	})
}

type instantAnswer struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (p *Plugin) query(ctx context.Context, inv plugin.Invocation) error {
	q := strings.TrimSpace(inv.Args)
	if q == "" {
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: usage: g <query>", inv.Sender))
		return nil
	}

	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1", p.baseURL, url.QueryEscape(q))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("search request returned %s", resp.Status)
	}

	var ia instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&ia); err != nil {
		return errors.Wrap(err, "decode response")
	}

	switch {
	case ia.AbstractText != "":
		reply := truncate(ia.AbstractText, 300)
		if ia.AbstractURL != "" {
			reply = fmt.Sprintf("%s | %s", reply, ia.AbstractURL)
		}
		inv.Host.Reply(inv.Target, reply)
	case len(ia.RelatedTopics) > 0 && ia.RelatedTopics[0].Text != "":
		t := ia.RelatedTopics[0]
		reply := truncate(t.Text, 300)
		if t.FirstURL != "" {
			reply = fmt.Sprintf("%s | %s", reply, t.FirstURL)
		}
		inv.Host.Reply(inv.Target, reply)
	default:
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: no results for %q", inv.Sender, q))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
