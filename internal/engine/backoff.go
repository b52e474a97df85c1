package engine

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy maps a retry attempt number to the instant the next
// attempt may run. Implementations must return a time strictly after now
// for every attempt >= 0, with non-decreasing delays as attempts grow.
type BackoffStrategy interface {
	NextRetryTime(attempt int) time.Time
}

// ExponentialBackoff grows the delay geometrically: base * multiplier^attempt,
// capped at max, with optional additive jitter. Jitter only ever adds to the
// deterministic delay, so the non-decreasing guarantee holds for the base
// curve.
type ExponentialBackoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration

	// Jitter is the fraction of the computed delay randomly added on top
	// (0.2 adds up to 20%). Zero disables jitter.
	Jitter float64

	now func() time.Time
}

// NewExponentialBackoff creates a strategy with the given parameters,
// substituting sane values for zero fields (1s base, 2x multiplier, 5m cap).
func NewExponentialBackoff(base time.Duration, multiplier float64, max time.Duration, jitter float64) *ExponentialBackoff {
	if base <= 0 {
		base = time.Second
	}
	if multiplier < 1 {
		multiplier = 2
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	return &ExponentialBackoff{Base: base, Multiplier: multiplier, Max: max, Jitter: jitter}
}

func (b *ExponentialBackoff) NextRetryTime(attempt int) time.Time {
	if attempt < 0 {
		attempt = 0
	}

	delay := time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(attempt)))
	if delay <= 0 || delay > b.Max {
		// Overflow from large attempts lands here too.
		delay = b.Max
	}
	if b.Jitter > 0 {
		delay += time.Duration(rand.Float64() * b.Jitter * float64(delay))
	}

	return b.clock().Add(delay)
}

func (b *ExponentialBackoff) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// FixedBackoff always schedules the next attempt Delay after now. Useful in
// tests and for callers that want a constant retry cadence.
type FixedBackoff struct {
	Delay time.Duration

	now func() time.Time
}

func (b FixedBackoff) NextRetryTime(int) time.Time {
	d := b.Delay
	if d <= 0 {
		d = time.Second
	}
	if b.now != nil {
		return b.now().Add(d)
	}
	return time.Now().Add(d)
}
