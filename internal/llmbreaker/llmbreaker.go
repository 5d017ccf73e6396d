// Package llmbreaker wraps the LLM client with everything the LLM Circuit
// Breaker (C7) requires: a per-bot breaker, a per-prompt result cache, a
// per-(bot,user) rate limit, and a per-bot daily token budget that resets
// at UTC midnight.
package llmbreaker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/tgdsl/runtime/internal/infra"
	"github.com/tgdsl/runtime/internal/llm"
	"github.com/tgdsl/runtime/internal/ratelimit"
	"github.com/tgdsl/runtime/internal/storage"
)

var (
	ErrBudgetExhausted = errors.New("budget_exhausted")
	ErrRateLimited      = errors.New("llm_rate_limited")
)

// CacheTTL is how long an improved reply is reused for an identical prompt.
const CacheTTL = 15 * time.Minute

// RateLimitPerMinute is the per-(bot,user) cap on LLM-backed requests.
const RateLimitPerMinute = 10

// Caller is the narrow surface llmbreaker needs from internal/llm, so tests
// can substitute a fake.
type Caller interface {
	Call(ctx context.Context, req llm.Request) (llm.Response, error)
}

type cached struct {
	text   string
	tokens int
}

// Breaker wires a Caller behind the per-bot circuit, cache, rate limit and
// budget described in §4.7.
type Breaker struct {
	caller   Caller
	breakers *infra.CircuitBreakerRegistry
	cache    *infra.TTLCache[string, cached]
	limiter  *ratelimit.Limiter
	budgets  storage.BudgetStore

	onStateChange func(botID, to string)
}

func New(caller Caller, budgets storage.BudgetStore) *Breaker {
	return &Breaker{
		caller: caller,
		breakers: infra.NewCircuitBreakerRegistry(infra.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		}),
		cache: infra.NewTTLCache[string, cached](infra.CacheConfig{DefaultTTL: CacheTTL}),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: RateLimitPerMinute / 60.0,
			BurstSize:         RateLimitPerMinute,
			Enabled:           true,
		}),
		budgets: budgets,
	}
}

// OnStateChange registers a callback invoked whenever a bot's breaker
// transitions state, for the caller to emit llm_breaker events / the
// circuit_breaker_state_changes_total metric.
func (b *Breaker) OnStateChange(fn func(botID, to string)) {
	b.onStateChange = fn
}

// Result is what Improve returns on success, including the cache-hit flag
// events.Sink.LLMRequest needs to pick the right metric branch.
type Result struct {
	Text     string
	Cached   bool
	Tokens   int
}

// Improve runs the prompt through the bot's breaker, honoring the
// per-(bot,user) rate limit, the per-bot daily token budget, and the
// 15-minute prompt cache, in that order: budget and rate-limit rejections
// never touch the cache or the breaker since they are not upstream-health
// signals.
func (b *Breaker) Improve(ctx context.Context, botID, userID string, dailyBudgetLimit int64, req llm.Request) (Result, error) {
	if !b.limiter.Allow(ratelimit.CompositeKey(botID, userID)) {
		return Result{}, ErrRateLimited
	}

	key := cacheKey(botID, req)
	if v, ok := b.cache.Get(key); ok {
		return Result{Text: v.text, Tokens: v.tokens, Cached: true}, nil
	}

	if dailyBudgetLimit > 0 {
		day := time.Now().UTC().Format("2006-01-02")
		used, err := b.budgets.Increment(ctx, botID, day, 0)
		if err != nil {
			return Result{}, err
		}
		if used >= dailyBudgetLimit {
			return Result{}, ErrBudgetExhausted
		}
	}

	cb := b.breakerFor(botID)
	var resp llm.Response
	var callErr error
	err := cb.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, llm.DefaultTimeout)
		defer cancel()
		r, cerr := b.caller.Call(callCtx, req)
		resp = r
		callErr = cerr
		if cerr != nil && !llm.IsBreakerFailure(cerr) {
			return nil // a 4xx is a caller error, not evidence the breaker should open
		}
		return cerr
	})
	if err != nil {
		if errors.Is(err, infra.ErrCircuitOpen) {
			return Result{}, infra.ErrCircuitOpen
		}
		return Result{}, err
	}
	if callErr != nil {
		return Result{}, callErr
	}

	if dailyBudgetLimit > 0 {
		day := time.Now().UTC().Format("2006-01-02")
		if _, err := b.budgets.Increment(ctx, botID, day, int64(resp.PromptTokens+resp.CompletionTokens)); err != nil {
			return Result{}, err
		}
	}

	total := resp.PromptTokens + resp.CompletionTokens
	b.cache.Set(key, cached{text: resp.Text, tokens: total})
	return Result{Text: resp.Text, Tokens: total}, nil
}

func (b *Breaker) breakerFor(botID string) *infra.CircuitBreaker {
	return b.breakers.GetWithConfig(botID, infra.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		OnStateChange: func(_, to string) {
			if b.onStateChange != nil {
				b.onStateChange(botID, to)
			}
		},
	})
}

// State reports the current breaker state for botID ("closed" if none has
// been created yet).
func (b *Breaker) State(botID string) string {
	return b.breakerFor(botID).State()
}

func cacheKey(botID string, req llm.Request) string {
	h := sha256.New()
	h.Write([]byte(botID))
	h.Write([]byte{0})
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(req.System))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}
