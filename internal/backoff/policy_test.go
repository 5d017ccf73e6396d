package backoff

import (
	"testing"
	"time"
)

func TestComputeBackoffWithRand(t *testing.T) {
	tests := []struct {
		name     string
		policy   BackoffPolicy
		attempt  int
		draw     float64
		expected time.Duration
	}{
		{
			name:     "attempt 1 no jitter",
			policy:   BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
			attempt:  1,
			draw:     0.5,
			expected: 100 * time.Millisecond,
		},
		{
			name:     "attempt 2 doubles",
			policy:   BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
			attempt:  2,
			draw:     0.5,
			expected: 200 * time.Millisecond,
		},
		{
			name:     "broadcast resend schedule: attempt 1 is 1s",
			policy:   BackoffPolicy{InitialMs: 1000, MaxMs: 16000, Factor: 4, Jitter: 0},
			attempt:  1,
			draw:     0,
			expected: 1 * time.Second,
		},
		{
			name:     "broadcast resend schedule: attempt 2 is 4s",
			policy:   BackoffPolicy{InitialMs: 1000, MaxMs: 16000, Factor: 4, Jitter: 0},
			attempt:  2,
			draw:     0,
			expected: 4 * time.Second,
		},
		{
			name:     "broadcast resend schedule: attempt 3 is 16s (clamped)",
			policy:   BackoffPolicy{InitialMs: 1000, MaxMs: 16000, Factor: 4, Jitter: 0},
			attempt:  3,
			draw:     0,
			expected: 16 * time.Second,
		},
		{
			name:     "clamped to max",
			policy:   BackoffPolicy{InitialMs: 100, MaxMs: 500, Factor: 2, Jitter: 0},
			attempt:  10,
			draw:     0.5,
			expected: 500 * time.Millisecond,
		},
		{
			name:     "10% jitter at max draw",
			policy:   BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0.1},
			attempt:  1,
			draw:     1.0,
			expected: 110 * time.Millisecond,
		},
		{
			name:     "10% jitter at zero draw",
			policy:   BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0.1},
			attempt:  1,
			draw:     0.0,
			expected: 100 * time.Millisecond,
		},
		{
			name:     "attempt 0 treated as 1",
			policy:   BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
			attempt:  0,
			draw:     0.5,
			expected: 100 * time.Millisecond,
		},
		{
			name:     "negative attempt treated as 1",
			policy:   BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
			attempt:  -5,
			draw:     0.5,
			expected: 100 * time.Millisecond,
		},
		{
			name:     "jitter causes max clamping",
			policy:   BackoffPolicy{InitialMs: 100, MaxMs: 105, Factor: 1, Jitter: 0.5},
			attempt:  1,
			draw:     1.0,
			expected: 105 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBackoffWithRand(tt.policy, tt.attempt, tt.draw)
			if got != tt.expected {
				t.Errorf("ComputeBackoffWithRand() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestComputeBackoff_JitterRange(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0.2}
	minExpected := 100 * time.Millisecond
	maxExpected := 120 * time.Millisecond

	for i := 0; i < 100; i++ {
		got := ComputeBackoff(policy, 1)
		if got < minExpected || got > maxExpected {
			t.Errorf("ComputeBackoff() = %v, want in range [%v, %v]", got, minExpected, maxExpected)
		}
	}
}
