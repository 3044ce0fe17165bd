package pipeflow

import (
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy decides whether a failed job is resubmitted and how long to
// wait before the next attempt. Delays grow exponentially (multiplier 2)
// from Base up to Cap, with ±20% jitter so that many jobs failing at once do
// not resubmit in lockstep.
type RetryPolicy struct {
	Base time.Duration
	Cap  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetryPolicy builds a policy with the given base delay and ceiling.
func NewRetryPolicy(base, ceiling time.Duration) *RetryPolicy {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoffCap
	}
	return &RetryPolicy{
		Base: base,
		Cap:  ceiling,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ShouldRetry reports whether another attempt is permitted after `attempts`
// completed tries against a budget of maxRetries resubmissions. A job is
// therefore tried at most maxRetries+1 times.
func (p *RetryPolicy) ShouldRetry(attempts, maxRetries uint) bool {
	return attempts <= maxRetries
}

// NextDelay returns the jittered delay to wait before attempt number
// attempts+1, where `attempts` tries have already completed.
func (p *RetryPolicy) NextDelay(attempts uint) time.Duration {
	d := p.Base
	for i := uint(1); i < attempts; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	return p.jitter(d)
}

// jitter scales d by a random factor in [0.8, 1.2].
func (p *RetryPolicy) jitter(d time.Duration) time.Duration {
	p.mu.Lock()
	f := 0.8 + 0.4*p.rng.Float64()
	p.mu.Unlock()
	return time.Duration(float64(d) * f)
}
