// Package tz answers time-zone lookups from the system tz database; it
// makes no network calls.
package tz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelbot/kestrel/internal/plugin"
)

// Plugin answers .time queries.
type Plugin struct {
	defaultZone string
	blacklist   []string
	now         func() time.Time
}

// New creates the plugin. Settings: default_zone (used when the query is
// empty; defaults to UTC), blacklist (channels to stay quiet in).
func New(settings map[string]string) *Plugin {
	p := &Plugin{
		defaultZone: "UTC",
		blacklist:   plugin.SplitChannels(settings["blacklist"]),
		now:         time.Now,
	}
	if z := settings["default_zone"]; z != "" {
		p.defaultZone = z
	}
	return p
}

// Register binds the .time command.
func (p *Plugin) Register(r *plugin.Registry) error {
	return r.Register(plugin.Registration{
		Name:      "tz",
		Command:   "time",
		Handler:   p.lookup,
		Blacklist: p.blacklist,
	})
}

func (p *Plugin) lookup(ctx context.Context, inv plugin.Invocation) error {
	zone := strings.TrimSpace(inv.Args)
	if zone == "" {
		zone = p.defaultZone
	}

	loc, err := time.LoadLocation(normalizeZone(zone))
	if err != nil {
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: unknown time zone %q (try something like America/New_York)", inv.Sender, zone))
		return nil
	}

	now := p.now().In(loc)
	inv.Host.Reply(inv.Target, fmt.Sprintf("%s: %s", loc, now.Format("Mon Jan 2 15:04:05 MST 2006")))
	return nil
}

// normalizeZone forgives the casual forms people type in chat: "utc",
// "america/new_york", "New York".
func normalizeZone(zone string) string {
	zone = strings.ReplaceAll(zone, " ", "_")
	if strings.EqualFold(zone, "UTC") {
		return "UTC"
	}
	if strings.EqualFold(zone, "Local") {
		return "Local"
	}

	parts := strings.Split(zone, "/")
	for i, part := range parts {
		segs := strings.Split(part, "_")
		for j, seg := range segs {
			if seg == "" {
				continue
			}
			segs[j] = strings.ToUpper(seg[:1]) + strings.ToLower(seg[1:])
		}
		parts[i] = strings.Join(segs, "_")
	}
	return strings.Join(parts, "/")
}
