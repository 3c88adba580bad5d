package connection

import (
	"time"

	"github.com/presbrey/pkg/wait"
)

// Backoff describes the reconnect delays: Base growing by Multiplier per
// failed attempt up to Max, with ±25% jitter when Jitter is set.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultBackoff is 2s doubling up to 5m with jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       2 * time.Second,
		Max:        5 * time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// delays is the sequence one Connect call walks through.
type delays struct {
	wait.Strategy
	max time.Duration
}

func (b Backoff) strategy() *delays {
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	return &delays{
		Strategy: wait.NewExponentialBackoffStrategy(b.Base, mult, b.Max, b.Jitter),
		max:      b.Max,
	}
}

// Next returns the delay before the next attempt and advances the sequence.
// Once the exponent overflows the strategy stops producing sane values, so
// anything non-positive is held at Max.
func (d *delays) Next() time.Duration {
	next, _ := d.Strategy.Next()
	if next <= 0 && d.max > 0 {
		return d.max
	}
	return next
}
