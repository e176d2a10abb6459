// Package wikipedia answers article lookups via the MediaWiki REST summary
// endpoint.
package wikipedia

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

const defaultBaseURL = "https://en.wikipedia.org"

// Plugin looks up article summaries.
type Plugin struct {
	client    *http.Client
	baseURL   string
	blacklist []string
}

// New creates the plugin. Settings: base_url (optional, for tests and
// non-English wikis), blacklist (channels to stay quiet in).
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

// Register binds the .wiki command.
func (p *Plugin) Register(r *plugin.Registry) error {
	return r.Register(plugin.Registration{
		Name:      "wikipedia",
		Command:   "wiki",
		Handler:   p.lookup,
		Blacklist: p.blacklist,
	})
}

type summary struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (p *Plugin) lookup(ctx context.Context, inv plugin.Invocation) error {
	title := strings.TrimSpace(inv.Args)
	if title == "" {
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: usage: wiki <article>", inv.Sender))
		return nil
	}

	endpoint := fmt.Sprintf("%s/api/rest_v1/page/summary/%s", p.baseURL, url.PathEscape(strings.ReplaceAll(title, " ", "_")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetch summary")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: no article found for %q", inv.Sender, title))
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("summary request returned %s", resp.Status)
	}

	var s summary
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return errors.Wrap(err, "decode summary")
	}

	reply := firstSentence(s.Extract)
	if reply == "" {
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: no summary available for %q", inv.Sender, title))
		return nil
	}
	if s.ContentURLs.Desktop.Page != "" {
		reply = fmt.Sprintf("%s | %s", reply, s.ContentURLs.Desktop.Page)
	}
	inv.Host.Reply(inv.Target, reply)
	return nil
}

// firstSentence keeps replies to one line of chat.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, ". "); idx > 0 {
		return s[:idx+1]
	}
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
