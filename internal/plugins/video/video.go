// Package video answers YouTube lookups: a .yt search command backed by the
// Data API, and a passive matcher that titles YouTube links pasted in
// channels via the keyless oEmbed endpoint.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/kestrelbot/kestrel/internal/plugin"
)

const defaultOEmbedBaseURL = "https://www.youtube.com"

var linkPattern = regexp.MustCompile(`(?:youtube\.com/watch\?\S*v=|youtu\.be/)([\w-]{6,})`)

// Plugin looks up videos.
type Plugin struct {
	client     *http.Client
	apiKey     string
	oembedBase string
	blacklist  []string

	ytOpts []option.ClientOption
}

// New creates the plugin. Settings: api_key (required for the .yt search
// command; the passive link titler works without it), blacklist (channels
// to stay quiet in), api_base_url and oembed_base_url (optional, for tests).
func New(settings map[string]string) *Plugin {
	p := &Plugin{
		client:     &http.Client{Timeout: 15 * time.Second},
		apiKey:     settings["api_key"],
		oembedBase: defaultOEmbedBaseURL,
		blacklist:  plugin.SplitChannels(settings["blacklist"]),
	}
	if p.apiKey != "" {
		p.ytOpts = append(p.ytOpts, option.WithAPIKey(p.apiKey))
	}
	if u := settings["api_base_url"]; u != "" {
		p.ytOpts = append(p.ytOpts, option.WithEndpoint(u))
	}
	if u := settings["oembed_base_url"]; u != "" {
		p.oembedBase = strings.TrimRight(u, "/")
	}
	return p
}

// Register binds the .yt command (when an API key is configured) and the
// passive link matcher.
func (p *Plugin) Register(r *plugin.Registry) error {
	if p.apiKey != "" {
		if err := r.Register(plugin.Registration{
			Name:      "video",
			Command:   "yt",
			Handler:   p.search,
			Blacklist: p.blacklist,
		}); err != nil {
			return err
		}
	} else {
		log.Info("video: no api_key configured, .yt search disabled")
	}

	return r.Register(plugin.Registration{
		Name:      "video",
		Matcher:   linkPattern,
		Handler:   p.titleLink,
		Blacklist: p.blacklist,
	})
}

func (p *Plugin) search(ctx context.Context, inv plugin.Invocation) error {
	q := strings.TrimSpace(inv.Args)
	if q == "" {
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: usage: yt <query>", inv.Sender))
		return nil
	}

	svc, err := yt.NewService(ctx, p.ytOpts...)
	if err != nil {
		return errors.Wrap(err, "youtube service")
	}

	res, err := svc.Search.List([]string{"snippet"}).
		Q(q).
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return errors.Wrap(err, "youtube search")
	}

	if len(res.Items) == 0 {
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: no videos found for %q", inv.Sender, q))
		return nil
	}

	item := res.Items[0]
	inv.Host.Reply(inv.Target, fmt.Sprintf("%s (%s) | https://youtu.be/%s",
		item.Snippet.Title, item.Snippet.ChannelTitle, item.Id.VideoId))
	return nil
}

type oembedResult struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// titleLink replies with the title of a YouTube link someone pasted.
func (p *Plugin) titleLink(ctx context.Context, inv plugin.Invocation) error {
	m := linkPattern.FindStringSubmatch(inv.Text)
	if m == nil {
		return nil
	}
	videoURL := "https://www.youtube.com/watch?v=" + m[1]

	endpoint := fmt.Sprintf("%s/oembed?url=%s&format=json", p.oembedBase, url.QueryEscape(videoURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "oembed request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Unlisted or removed videos 404 here; not worth an error reply.
		return nil
	}

	var res oembedResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if res.Title == "" {
		return nil
	}

	inv.Host.Reply(inv.Target, fmt.Sprintf("▶ %s (%s)", res.Title, res.AuthorName))
	return nil
}
