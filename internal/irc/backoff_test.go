package irc

import (
	"testing"
	"time"
)

func TestBackoffDelayNonDecreasingAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := backoffDelay(attempt)
		if d < prev {
			t.Errorf("Delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > backoffCap {
			t.Errorf("Delay exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}

	if got := backoffDelay(0); got != backoffBase {
		t.Errorf("First delay should be the base, got %v", got)
	}
	if got := backoffDelay(19); got != backoffCap {
		t.Errorf("Late delays should sit at the cap, got %v", got)
	}
}

func TestJitterBounds(t *testing.T) {
	base := time.Minute
	lo := time.Duration(float64(base) * (1 - backoffJitter))
	hi := time.Duration(float64(base) * (1 + backoffJitter))

	for i := 0; i < 1000; i++ {
		d := jitter(base)
		if d < lo || d > hi {
			t.Fatalf("Jittered delay %v outside [%v, %v]", d, lo, hi)
		}
	}
}
