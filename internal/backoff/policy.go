// Package backoff computes and sleeps through the exponential delay
// schedule used for transient retries: the broadcast engine's per-recipient
// resend (1s/4s/16s, spec.md §4.8) and a channel adapter's reconnect loop.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy parameterizes an exponential backoff curve. Attempt numbers
// are 1-indexed: attempt 1 waits InitialMs (plus jitter), attempt 2 waits
// InitialMs*Factor, and so on, capped at MaxMs.
type BackoffPolicy struct {
	InitialMs float64
	MaxMs     float64
	Factor    float64
	Jitter    float64 // fraction (0.0-1.0) of the base delay added as random jitter
}

// ComputeBackoff returns the delay to wait before the given attempt.
func ComputeBackoff(policy BackoffPolicy, attempt int) time.Duration {
	return ComputeBackoffWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter only, not security-sensitive
}

// ComputeBackoffWithRand is ComputeBackoff with the random draw supplied by
// the caller, so tests can pin the jitter to a known value.
func ComputeBackoffWithRand(policy BackoffPolicy, attempt int, draw float64) time.Duration {
	exponent := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exponent)
	withJitter := base + base*policy.Jitter*draw
	clamped := math.Min(policy.MaxMs, withJitter)
	return time.Duration(math.Round(clamped)) * time.Millisecond
}
