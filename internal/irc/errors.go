package irc

import "github.com/cockroachdb/errors"

// Error kinds for the connection core. Callers classify with errors.Is; the
// wrapped cause carries the detail.
var (
	// ErrFraming marks a malformed or oversized protocol line. The line is
	// discarded and the connection continues.
	ErrFraming = errors.New("framing error")

	// ErrTransport marks a connect, read, write or TLS failure. It triggers
	// a reconnect with backoff.
	ErrTransport = errors.New("transport error")

	// ErrRegistration marks a failure to register with the server, such as
	// exhausting every configured alternate nick. Fatal for the session.
	ErrRegistration = errors.New("registration error")
)
