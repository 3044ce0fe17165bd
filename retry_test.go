package pipeflow

import (
	"testing"
	"time"
)

func TestShouldRetry(t *testing.T) {
	p := NewRetryPolicy(time.Second, time.Minute)

	tests := []struct {
		attempts   uint
		maxRetries uint
		want       bool
	}{
		{1, 0, false}, // single attempt, no budget
		{1, 2, true},
		{2, 2, true},
		{3, 2, false}, // maxRetries=2 allows 3 total attempts
		{4, 2, false},
	}
	for _, tt := range tests {
		if got := p.ShouldRetry(tt.attempts, tt.maxRetries); got != tt.want {
			t.Errorf("ShouldRetry(%d, %d) = %t, want %t", tt.attempts, tt.maxRetries, got, tt.want)
		}
	}
}

func TestNextDelayExponential(t *testing.T) {
	p := NewRetryPolicy(time.Second, time.Hour)

	tests := []struct {
		attempts uint
		base     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tt := range tests {
		got := p.NextDelay(tt.attempts)
		lo := time.Duration(float64(tt.base) * 0.8)
		hi := time.Duration(float64(tt.base) * 1.2)
		if got < lo || got > hi {
			t.Errorf("NextDelay(%d) = %s, want within [%s, %s]", tt.attempts, got, lo, hi)
		}
	}
}

func TestNextDelayCapped(t *testing.T) {
	p := NewRetryPolicy(time.Second, 5*time.Second)

	// Far past the cap; jitter may add at most 20%.
	got := p.NextDelay(20)
	if max := time.Duration(float64(5*time.Second) * 1.2); got > max {
		t.Errorf("NextDelay(20) = %s, exceeds jittered cap %s", got, max)
	}
	if min := time.Duration(float64(5*time.Second) * 0.8); got < min {
		t.Errorf("NextDelay(20) = %s, below jittered cap %s", got, min)
	}
}

func TestNextDelayJitterVaries(t *testing.T) {
	p := NewRetryPolicy(time.Second, time.Hour)

	seen := make(map[time.Duration]bool)
	for i := 0; i < 32; i++ {
		seen[p.NextDelay(1)] = true
	}
	if len(seen) < 2 {
		t.Error("jitter produced identical delays across 32 samples")
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := NewRetryPolicy(0, 0)
	if p.Base != DefaultBackoffBase || p.Cap != DefaultBackoffCap {
		t.Errorf("defaults not applied: base=%s cap=%s", p.Base, p.Cap)
	}
}
