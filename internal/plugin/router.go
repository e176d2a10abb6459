package plugin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/kestrelbot/kestrel/internal/config"
	"github.com/kestrelbot/kestrel/internal/telemetry"
)

// Registry matches incoming chat messages against registered triggers and
// dispatches handlers. Registration happens once at startup; Route is called
// from the session's serialized flow, and every dispatch runs in its own
// goroutine so a slow or broken plugin never stalls routing.
type Registry struct {
	prefix  string
	timeout time.Duration

	exact   map[string]Registration
	passive []Registration

	wg sync.WaitGroup
}

// NewRegistry creates a registry for the given command prefix and default
// per-invocation timeout.
func NewRegistry(prefix string, defaultTimeout time.Duration) *Registry {
	return &Registry{
		prefix:  prefix,
		timeout: defaultTimeout,
		exact:   make(map[string]Registration),
	}
}

// Register adds a trigger. Claiming a command word that another plugin
// already holds is a configuration error, not a silent overwrite.
func (r *Registry) Register(reg Registration) error {
	if reg.Handler == nil {
		return errors.Mark(errors.Newf("plugin %s: registration without handler", reg.Name), config.ErrConfiguration)
	}
	if reg.Command == "" && reg.Matcher == nil {
		return errors.Mark(errors.Newf("plugin %s: registration without trigger", reg.Name), config.ErrConfiguration)
	}
	if reg.Command != "" && reg.Matcher != nil {
		return errors.Mark(errors.Newf("plugin %s: registration with both command and matcher", reg.Name), config.ErrConfiguration)
	}

	if reg.Command != "" {
		word := strings.ToLower(reg.Command)
		if held, ok := r.exact[word]; ok {
			return errors.Mark(
				errors.Newf("command %q already registered by plugin %s", word, held.Name),
				config.ErrConfiguration)
		}
		r.exact[word] = reg
		log.Debugf("Registered command %s%s (plugin %s)", r.prefix, word, reg.Name)
		return nil
	}

	r.passive = append(r.passive, reg)
	log.Debugf("Registered passive matcher %q (plugin %s)", reg.Matcher, reg.Name)
	return nil
}

// Route matches a chat message and dispatches the matching handlers. Exact
// command matches are exclusive and take precedence; passive matchers are
// evaluated only on miss, in registration order, and every one that accepts
// is dispatched. Blacklisted registrations never fire in their listed
// channels. No match is silent.
func (r *Registry) Route(ctx context.Context, host Host, target, sender, text string) {
	if word, args, ok := r.splitCommand(host.Nick(), text); ok {
		if reg, found := r.exact[word]; found {
			if reg.blockedIn(target) {
				log.Debugf("Command %q blacklisted in %s (plugin %s)", word, target, reg.Name)
				return
			}
			r.dispatch(ctx, reg, Invocation{Host: host, Target: target, Sender: sender, Args: args, Text: text})
			return
		}
		log.Debugf("No plugin claims command %q", word)
	}

	for _, reg := range r.passive {
		if reg.blockedIn(target) {
			continue
		}
		if reg.Matcher.MatchString(text) {
			r.dispatch(ctx, reg, Invocation{Host: host, Target: target, Sender: sender, Args: text, Text: text})
		}
	}
}

// splitCommand recognizes the two command forms: "<prefix>word args" and
// "<nick>: word args".
func (r *Registry) splitCommand(nick, text string) (word, args string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(text, r.prefix):
		rest = text[len(r.prefix):]
	case nick != "" && len(text) > len(nick)+1 && strings.EqualFold(text[:len(nick)], nick) && text[len(nick)] == ':':
		rest = strings.TrimSpace(text[len(nick)+1:])
	default:
		return "", "", false
	}

	fields := strings.SplitN(rest, " ", 2)
	if fields[0] == "" {
		return "", "", false
	}
	word = strings.ToLower(fields[0])
	if len(fields) > 1 {
		args = strings.TrimSpace(fields[1])
	}
	return word, args, true
}

// dispatch runs one handler under its timeout, isolated from the router and
// the session. A failure is reported exactly once and answered with a single
// short error reply; a cancelled session discards the result silently.
func (r *Registry) dispatch(ctx context.Context, reg Registration, inv Invocation) {
	timeout := reg.Timeout
	if timeout == 0 {
		timeout = r.timeout
	}
	telemetry.IncDispatch()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					done <- errors.Mark(errors.Newf("panic: %v", p), ErrPlugin)
				}
			}()
			done <- reg.Handler(tctx, inv)
		}()

		var err error
		select {
		case err = <-done:
		case <-tctx.Done():
			err = tctx.Err()
		}

		if err == nil {
			return
		}
		if ctx.Err() != nil {
			// Session is closing; not a plugin failure.
			log.Debugf("Plugin %s invocation discarded on shutdown", reg.Name)
			return
		}

		telemetry.IncPluginFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			log.Errorf("Plugin %s timed out after %v", reg.Name, timeout)
		} else {
			log.Errorf("Plugin %s failed: %v", reg.Name, err)
		}
		inv.Host.Reply(inv.Target, fmt.Sprintf("%s: the %s plugin failed, try again later", inv.Sender, reg.Name))
	}()
}

// Wait blocks until every in-flight invocation has finished. Used by tests
// and the shutdown path.
func (r *Registry) Wait() {
	r.wg.Wait()
}
