package irc

import (
	"context"
	"sync"
	"time"
)

// Entry is one queued outbound chat message.
type Entry struct {
	Target string
	Text   string
	Queued time.Time
}

// Guard throttles outbound chat traffic. It is a bounded FIFO drained at a
// fixed minimum interval between sends; enqueueing never blocks the caller,
// and at capacity the oldest entry is dropped in favor of the new one.
type Guard struct {
	capacity int
	interval time.Duration

	mu      sync.Mutex
	entries []Entry
	dropped uint64

	wake chan struct{}
}

// NewGuard returns a Guard with the given queue capacity and minimum
// inter-send interval.
func NewGuard(capacity int, interval time.Duration) *Guard {
	return &Guard{
		capacity: capacity,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue adds a message to the outbound queue. It reports whether an older
// entry was dropped to make room.
func (g *Guard) Enqueue(target, text string) (dropped bool) {
	g.mu.Lock()
	if len(g.entries) >= g.capacity {
		g.entries = g.entries[1:]
		g.dropped++
		dropped = true
	}
	g.entries = append(g.entries, Entry{Target: target, Text: text, Queued: time.Now()})
	g.mu.Unlock()

	select {
	case g.wake <- struct{}{}:
	default:
	}
	return dropped
}

// Len returns the number of queued entries.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Dropped returns the total number of entries dropped due to overflow.
func (g *Guard) Dropped() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}

// Discard empties the queue, returning how many entries were thrown away.
// Used when a session closes and queued replies no longer have a connection.
func (g *Guard) Discard() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.entries)
	g.entries = nil
	return n
}

func (g *Guard) pop() (Entry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.entries) == 0 {
		return Entry{}, false
	}
	e := g.entries[0]
	g.entries = g.entries[1:]
	return e, true
}

// Run drains the queue, calling send for each entry in FIFO order and waiting
// at least the configured interval between sends. It returns when ctx is
// cancelled or send fails. Run is the only consumer; there must be exactly
// one Run per Guard.
func (g *Guard) Run(ctx context.Context, send func(Entry) error) error {
	for {
		e, ok := g.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-g.wake:
				continue
			}
		}

		if err := send(e); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.NewTimer(g.interval).C:
		}
	}
}
