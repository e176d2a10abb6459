package irc

import (
	"math/rand"
	"time"
)

const (
	backoffBase   = 2 * time.Second
	backoffCap    = 5 * time.Minute
	backoffJitter = 0.2

	// activeGrace is how long a session must hold Active before the
	// reconnect attempt counter resets. Guards against a server that
	// accepts the connection and immediately drops it.
	activeGrace = time.Minute
)

// backoffDelay returns the base reconnect delay for the given zero-based
// attempt number: exponential from backoffBase, capped at backoffCap.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

// jitter spreads a delay by ±backoffJitter so that a fleet of clients does
// not reconnect in lockstep.
func jitter(d time.Duration) time.Duration {
	f := 1 + backoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * f)
}
