// Package plugin holds the command registry and the capability surface that
// plugin handlers run against. Plugins never see the session or the
// transport; replies go through the Host, and misbehaving handlers are
// contained at the dispatch boundary.
package plugin

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrPlugin marks a failed plugin invocation: the handler returned an error,
// timed out, or panicked. Always contained at the router boundary.
var ErrPlugin = errors.New("plugin error")

// Host is the capability surface handed to a plugin invocation.
type Host interface {
	// Reply queues a chat message for delivery.
	Reply(target, text string)
	// Nick returns the session's current nick.
	Nick() string
	// Channels returns a snapshot of joined channels.
	Channels() []string
}

// Invocation is one matched message handed to a handler.
type Invocation struct {
	Host   Host
	Target string // where replies should go
	Sender string // nick that sent the message
	Args   string // text after the command word; full text for passive matches
	Text   string // the full message text
}

// Handler is a plugin entry point. The context carries the invocation
// timeout and is cancelled when the session shuts down; handlers are
// expected to honor it.
type Handler func(ctx context.Context, inv Invocation) error

// Registration binds a trigger to a handler. Exactly one of Command or
// Matcher must be set: a Command is claimed exclusively, Matchers are
// evaluated passively and non-exclusively.
type Registration struct {
	Name      string // owning plugin name, used in logs and error replies
	Command   string // exact command word (without prefix)
	Matcher   *regexp.Regexp
	Handler   Handler
	Timeout   time.Duration // per-invocation timeout; 0 uses the registry default
	Blacklist []string      // channels this trigger stays quiet in
}

// blockedIn reports whether the registration is blacklisted for target.
func (reg Registration) blockedIn(target string) bool {
	for _, ch := range reg.Blacklist {
		if strings.EqualFold(ch, target) {
			return true
		}
	}
	return false
}

// SplitChannels parses a comma or space separated channel list from a plugin
// settings value.
func SplitChannels(s string) []string {
	return strings.Fields(strings.ReplaceAll(s, ",", " "))
}
