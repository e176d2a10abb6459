package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ergochat/irc-go/ircmsg"
	log "github.com/sirupsen/logrus"

	"github.com/kestrelbot/kestrel/internal/config"
	"github.com/kestrelbot/kestrel/internal/telemetry"
)

// Version information (set at build time or here)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
)

// State is the connection lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateTLSHandshaking
	StateRegistering
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateTLSHandshaking:
		return "tls-handshaking"
	case StateRegistering:
		return "registering"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	dialTimeout  = 30 * time.Second
	writeTimeout = 30 * time.Second
	rejoinDelay  = 10 * time.Second
)

// Session owns one logical connection to an IRC server: transport lifecycle,
// registration, liveness, and reconnection with backoff. Chat messages seen
// while Active are handed to OnChatMessage; everything else is session
// bookkeeping. All Session state is mutated from the Run goroutine only.
type Session struct {
	cfg   *config.Config
	guard *Guard

	// OnChatMessage receives PRIVMSG traffic while the session is Active.
	// target is where a reply should go (the channel, or the sender for a
	// private message). The context is cancelled when the connection that
	// delivered the message goes away. Must be set before Run.
	OnChatMessage func(ctx context.Context, target, sender, text string)

	mu          sync.RWMutex
	conn        net.Conn
	state       State
	currentNick string
	channels    map[string]bool

	writeMu sync.Mutex

	// Reconnect bookkeeping, touched only from Run.
	attempts    int
	activeSince time.Time
	grace       time.Duration
}

// NewSession creates a session for the given configuration. The session does
// not connect until Run is called.
func NewSession(cfg *config.Config) *Session {
	return &Session{
		cfg:      cfg,
		guard:    NewGuard(cfg.QueueSize, cfg.SendInterval),
		channels: make(map[string]bool),
		grace:    activeGrace,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Nick returns the nick the session currently holds, which may differ from
// the configured nick after a collision.
func (s *Session) Nick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentNick
}

// Channels returns a snapshot of the channels the session has joined.
func (s *Session) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Privmsg queues a chat message for delivery through the flood guard. It
// never blocks; if the queue is full the oldest entry is dropped.
func (s *Session) Privmsg(target, text string) {
	if s.guard.Enqueue(target, text) {
		log.Warnf("Outbound queue full, dropped oldest message for %s", target)
		telemetry.IncQueueDrop()
	}
}

// Run connects and maintains the session until ctx is cancelled or a fatal
// registration error occurs. Transient transport failures reconnect with
// capped, jittered exponential backoff.
func (s *Session) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)

		if ctx.Err() != nil {
			log.Info("Session closed")
			return nil
		}
		if errors.Is(err, ErrRegistration) {
			return err
		}

		delay := jitter(backoffDelay(s.attempts))
		s.attempts++
		telemetry.IncReconnect()
		log.Warnf("Connection lost (%v), reconnecting in %v (attempt %d)", err, delay.Round(time.Millisecond), s.attempts)

		select {
		case <-ctx.Done():
			return nil
		case <-time.NewTimer(delay).C:
		}
	}
}

// runOnce drives a single connection from Connecting through Closing. The
// transport is closed on every exit path.
func (s *Session) runOnce(ctx context.Context) error {
	s.setState(StateConnecting)

	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.currentNick = s.cfg.Nick
	s.channels = make(map[string]bool)
	s.mu.Unlock()
	s.activeSince = time.Time{}

	defer func() {
		s.setState(StateClosing)
		if n := s.guard.Discard(); n > 0 {
			log.Infof("Discarded %d queued outbound messages", n)
		}
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		if !s.activeSince.IsZero() && time.Since(s.activeSince) >= s.grace {
			s.attempts = 0
		}
		s.setState(StateDisconnected)
	}()

	// Cancelled when this connection ends; plugin invocations inherit it.
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// On shutdown, say goodbye and unblock the read loop.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.setState(StateClosing)
			_ = s.send("QUIT", "shutting down")
			conn.Close()
		case <-stop:
		}
	}()

	// Drain loop: the single writer of chat traffic.
	go func() {
		_ = s.guard.Run(cctx, func(e Entry) error {
			return s.send("PRIVMSG", e.Target, e.Text)
		})
	}()

	s.setState(StateRegistering)
	if err := s.register(); err != nil {
		return err
	}

	return s.readLoop(cctx, conn)
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	log.Debugf("Connecting to %s", addr)

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "dial %s", addr), ErrTransport)
	}

	if !s.cfg.UseTLS {
		return conn, nil
	}

	// A handshake failure reconnects like any connection failure; it is
	// never downgraded to plaintext.
	s.setState(StateTLSHandshaking)
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         s.cfg.Server,
		InsecureSkipVerify: !s.cfg.TLSVerify,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Mark(errors.Wrap(err, "tls handshake"), ErrTransport)
	}
	return tlsConn, nil
}

func (s *Session) register() error {
	if s.cfg.ServerPass != "" {
		if err := s.send("PASS", s.cfg.ServerPass); err != nil {
			return err
		}
	}
	if err := s.send("NICK", s.cfg.Nick); err != nil {
		return err
	}
	return s.send("USER", s.cfg.Username, "0", "*", s.cfg.RealName)
}

// readLoop is the session's main flow: it reads, decodes, and reacts until
// the connection dies, the liveness deadline passes, or a fatal error occurs.
func (s *Session) readLoop(ctx context.Context, conn net.Conn) error {
	dec := NewDecoder()
	buf := make([]byte, 4096)

	// nicks we may still try during registration
	nicks := append([]string{s.cfg.Nick}, s.cfg.AltNicks...)
	nickIdx := 0

	probeSent := false
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PingTimeout))

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if !probeSent {
					// Silent window elapsed; probe before giving up.
					probeSent = true
					log.Debug("No server traffic, sending liveness probe")
					if serr := s.send("PING", "keepalive"); serr != nil {
						return serr
					}
					_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PingTimeout / 2))
					continue
				}
				return errors.Mark(errors.New("connection stalled, no traffic within liveness window"), ErrTransport)
			}
			return errors.Mark(errors.Wrap(err, "read"), ErrTransport)
		}

		probeSent = false
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PingTimeout))

		msgs, ferrs := dec.Push(buf[:n])
		for _, ferr := range ferrs {
			log.Warnf("Discarded malformed line: %v", ferr)
			telemetry.IncFramingError()
		}

		for i := range msgs {
			if err := s.handleMessage(ctx, &msgs[i], nicks, &nickIdx); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, msg *ircmsg.Message, nicks []string, nickIdx *int) error {
	telemetry.IncInbound()

	switch msg.Command {
	case "PING":
		// Liveness is answered here, never routed.
		return s.send("PONG", msg.Params...)

	case "001":
		// Registration accepted; the server tells us our actual nick.
		if len(msg.Params) > 0 {
			s.mu.Lock()
			s.currentNick = msg.Params[0]
			s.mu.Unlock()
		}
		log.Infof("Registered with %s as %s", s.cfg.Server, s.Nick())

	case "376", "422":
		// End of MOTD (or none): identify and join.
		if s.State() == StateActive {
			return nil
		}
		if s.cfg.NickPass != "" {
			log.Info("Identifying via NickServ")
			if err := s.send("PRIVMSG", "NickServ", fmt.Sprintf("IDENTIFY %s %s", s.cfg.Nick, s.cfg.NickPass)); err != nil {
				return err
			}
		}
		for _, channel := range s.cfg.Channels {
			log.Infof("Joining %s", channel)
			if err := s.send("JOIN", channel); err != nil {
				return err
			}
		}
		s.setState(StateActive)
		s.activeSince = time.Now()

	case "432", "433":
		// Nick unavailable. During registration, rotate through the
		// alternates; running out of them is fatal for the session.
		if s.State() != StateRegistering {
			log.Warnf("Nick change rejected: %s", msg.Command)
			return nil
		}
		*nickIdx++
		if *nickIdx >= len(nicks) {
			return errors.Mark(errors.Newf("all %d configured nicks are taken", len(nicks)), ErrRegistration)
		}
		next := nicks[*nickIdx]
		log.Warnf("Nick in use, trying alternate %s", next)
		s.mu.Lock()
		s.currentNick = next
		s.mu.Unlock()
		return s.send("NICK", next)

	case "NICK":
		if msg.Nick() == s.Nick() && len(msg.Params) > 0 {
			s.mu.Lock()
			s.currentNick = msg.Params[0]
			s.mu.Unlock()
			log.Infof("Nick changed to %s", msg.Params[0])
		}

	case "JOIN":
		if len(msg.Params) > 0 && msg.Nick() == s.Nick() {
			s.mu.Lock()
			s.channels[msg.Params[0]] = true
			s.mu.Unlock()
			log.Infof("Joined %s", msg.Params[0])
		}

	case "PART":
		if len(msg.Params) > 0 && msg.Nick() == s.Nick() {
			s.mu.Lock()
			delete(s.channels, msg.Params[0])
			s.mu.Unlock()
			log.Infof("Parted %s", msg.Params[0])
		}

	case "KICK":
		if len(msg.Params) >= 2 && msg.Params[1] == s.Nick() {
			channel := msg.Params[0]
			s.mu.Lock()
			delete(s.channels, channel)
			s.mu.Unlock()
			log.Warnf("Kicked from %s by %s, rejoining in %v", channel, msg.Nick(), rejoinDelay)
			time.AfterFunc(rejoinDelay, func() {
				if slices.Contains(s.cfg.Channels, channel) {
					_ = s.send("JOIN", channel)
				}
			})
		}

	case "PRIVMSG":
		if len(msg.Params) < 2 || s.State() != StateActive {
			return nil
		}
		target := msg.Params[0]
		text := msg.Params[1]
		sender := msg.Nick()

		if strings.HasPrefix(text, "\x01") {
			s.handleCTCP(sender, text)
			return nil
		}

		// Private messages reply to the sender, not to our own nick.
		if strings.EqualFold(target, s.Nick()) {
			target = sender
		}
		if s.OnChatMessage != nil {
			s.OnChatMessage(ctx, target, sender, text)
		}

	case "ERROR":
		detail := ""
		if len(msg.Params) > 0 {
			detail = msg.Params[0]
		}
		return errors.Mark(errors.Newf("server closed connection: %s", detail), ErrTransport)
	}

	return nil
}

func (s *Session) handleCTCP(sender, text string) {
	body := strings.Trim(text, "\x01")
	if strings.EqualFold(body, "VERSION") {
		reply := fmt.Sprintf("kestrel %s (built %s)", Version, BuildDate)
		_ = s.send("NOTICE", sender, fmt.Sprintf("\x01VERSION %s\x01", reply))
	}
}

// send encodes and writes a single protocol line. It is safe for concurrent
// use; the write mutex keeps lines whole on the wire.
func (s *Session) send(command string, params ...string) error {
	msg := ircmsg.MakeMessage(nil, "", command, params...)
	line, err := Encode(msg)
	if err != nil {
		return err
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return errors.Mark(errors.New("not connected"), ErrTransport)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(line); err != nil {
		return errors.Mark(errors.Wrap(err, "write"), ErrTransport)
	}
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	old := s.state
	s.state = st
	s.mu.Unlock()
	if old != st {
		log.Debugf("Session state %s -> %s", old, st)
	}
}
