// Package ratelimit implements token-bucket throttling for outbound
// Telegram sends, broadcast fan-out, and per-(bot,user) LLM calls.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures a token bucket or a Limiter's per-key buckets.
type Config struct {
	// RequestsPerSecond is the sustained refill rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// BurstSize is the bucket capacity.
	BurstSize int `yaml:"burst_size"`
	// Enabled controls whether the limiter actually throttles; when
	// false, Allow always returns true.
	Enabled bool `yaml:"enabled"`
}

// Bucket is a single token bucket. The Telegram adapter and the broadcast
// engine each hold one to cap their own outbound send rate.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewBucket creates a token bucket at full capacity, defaulting
// RequestsPerSecond to 10 and BurstSize to 2x the rate when unset.
func NewBucket(config Config) *Bucket {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10.0
	}
	if config.BurstSize <= 0 {
		config.BurstSize = int(config.RequestsPerSecond * 2)
	}

	return &Bucket{
		tokens:     float64(config.BurstSize),
		maxTokens:  float64(config.BurstSize),
		refillRate: config.RequestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Allow reports whether a single request may proceed now, consuming a
// token if so.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// refill tops up tokens for elapsed time. Caller must hold b.mu.
func (b *Bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// tokens returns the current token count after applying refill. Used by
// prune to decide which per-key buckets look idle.
func (b *Bucket) tokensAfterRefill() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// WaitTime reports how long a caller should sleep before its next Allow
// would succeed. The Telegram adapter and broadcast engine use this to pace
// sends instead of busy-polling Allow.
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= 1 {
		return 0
	}

	needed := 1 - b.tokens
	seconds := needed / b.refillRate
	return time.Duration(seconds * float64(time.Second))
}

// Limiter holds one Bucket per key -- internal/llmbreaker keys this by
// (botID, userID) via CompositeKey so each conversation gets its own LLM
// call budget.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	config  Config
	maxKeys int
}

// NewLimiter creates a per-key rate limiter.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		config:  config,
		maxKeys: 10000,
	}
}

// Allow reports whether a request for key may proceed now. Always true
// when the limiter is disabled.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}

	return l.getBucket(key).Allow()
}

func (l *Limiter) getBucket(key string) *Bucket {
	l.mu.RLock()
	bucket, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, exists = l.buckets[key]; exists {
		return bucket
	}

	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}

	bucket = NewBucket(l.config)
	l.buckets[key] = bucket
	return bucket
}

// prune drops buckets sitting near full capacity, a cheap proxy for
// "hasn't been used in a while" that avoids tracking a separate
// last-access timestamp per key.
func (l *Limiter) prune() {
	for key, bucket := range l.buckets {
		if bucket.tokensAfterRefill() >= bucket.maxTokens*0.9 {
			delete(l.buckets, key)
		}
	}
}

// CompositeKey joins parts into a single rate-limit key, e.g.
// CompositeKey(botID, userID).
func CompositeKey(parts ...string) string {
	key := ""
	for i, part := range parts {
		if i > 0 {
			key += ":"
		}
		key += part
	}
	return key
}
