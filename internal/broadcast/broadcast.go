// Package broadcast is the Broadcast Engine (C8): it enumerates a bot's
// audience in stable, chunked order, renders the message per recipient,
// shapes outbound send rate with a leaky-bucket throttle, and records one
// delivery event per recipient with retry-with-backoff, so the whole run is
// resumable across a process restart.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tgdsl/runtime/internal/backoff"
	"github.com/tgdsl/runtime/internal/channels"
	"github.com/tgdsl/runtime/internal/events"
	"github.com/tgdsl/runtime/internal/i18n"
	"github.com/tgdsl/runtime/internal/ratelimit"
	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/internal/template"
	"github.com/tgdsl/runtime/pkg/models"
)

// chunkSize is the audience page size (§4.8: "≤ 1000 per chunk").
const chunkSize = 1000

// retryPolicy produces the 1s/4s/16s backoff schedule for a transient send
// failure: InitialMs*Factor^(attempt-1) with Factor 4 gives 1000, 4000,
// 16000 ms for attempts 1..3.
var retryPolicy = backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 16000, Factor: 4, Jitter: 0}

const maxSendAttempts = 4

// Engine drives one Broadcast's lifecycle against a fixed audience store,
// channel registry and i18n resolver.
type Engine struct {
	broadcasts storage.BroadcastStore
	botUsers   storage.BotUserStore
	i18n       *i18n.Resolver
	channels   *channels.Registry
	events     *events.Sink
	logger     *slog.Logger
}

func New(broadcasts storage.BroadcastStore, botUsers storage.BotUserStore, resolver *i18n.Resolver, registry *channels.Registry, sink *events.Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{broadcasts: broadcasts, botUsers: botUsers, i18n: resolver, channels: registry, events: sink, logger: logger}
}

// Run drives b from its current status to completion, resuming from the
// first recipient without a recorded delivery event if status is already
// "running" (a restart mid-broadcast). It blocks for the duration of the
// send; callers run it in its own goroutine.
func (e *Engine) Run(ctx context.Context, b *models.Broadcast) error {
	if b.Status == models.BroadcastPending {
		b.Status = models.BroadcastRunning
		if err := e.broadcasts.Update(ctx, b); err != nil {
			return fmt.Errorf("broadcast: mark running: %w", err)
		}
	}

	adapter, ok := e.channels.Outbound("telegram")
	if !ok {
		b.Status = models.BroadcastFailed
		_ = e.broadcasts.Update(ctx, b)
		return fmt.Errorf("broadcast: no telegram adapter registered")
	}

	limiter := ratelimit.NewBucket(ratelimit.Config{
		RequestsPerSecond: float64(b.ThrottlePerSec),
		BurstSize:         maxInt(b.ThrottlePerSec, 1),
		Enabled:           true,
	})

	afterUserID := ""
	for {
		users, err := e.botUsers.ListAudience(ctx, b.BotID, b.Audience, afterUserID, chunkSize)
		if err != nil {
			return fmt.Errorf("broadcast: list audience: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for _, u := range users {
			if err := ctx.Err(); err != nil {
				return err
			}

			done, err := e.broadcasts.HasDelivery(ctx, b.ID, u.UserID)
			if err != nil {
				return fmt.Errorf("broadcast: check delivery: %w", err)
			}
			if done {
				afterUserID = u.UserID
				continue
			}

			if wait := limiter.WaitTime(); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			limiter.Allow()

			e.sendOne(ctx, b, adapter, u)
			afterUserID = u.UserID
		}

		if len(users) < chunkSize {
			break
		}
	}

	if b.Failed > 0 && b.Sent == 0 {
		b.Status = models.BroadcastFailed
	} else {
		b.Status = models.BroadcastCompleted
	}
	if err := e.broadcasts.Update(ctx, b); err != nil {
		return fmt.Errorf("broadcast: mark done: %w", err)
	}
	e.events.BroadcastDone(ctx, b.BotID, b.ID, string(b.Status), b.Sent, b.Failed, b.Blocked)
	return nil
}

func (e *Engine) sendOne(ctx context.Context, b *models.Broadcast, adapter channels.OutboundAdapter, u *models.BotUser) {
	locale, err := e.i18n.ResolveLocale(ctx, b.BotID, u.UserID, u.ChatID, "")
	if err != nil {
		locale = i18n.FallbackLocale
	}
	text := b.MessageTemplate
	if i18n.IsMarker(text) {
		if resolved, err := e.i18n.Translate(ctx, b.BotID, locale, text); err == nil {
			text = resolved
		}
	}
	rendered, err := template.Render(text, template.Scope{"user_id": u.UserID, "chat_id": u.ChatID}, "")
	if err != nil {
		rendered = text
	}
	reply := models.Reply{Text: rendered}

	result, attempts := sendWithRetry(ctx, adapter, u.ChatID, reply)

	switch result {
	case deliveryBlocked:
		b.Blocked++
		_ = e.broadcasts.RecordDelivery(ctx, models.BroadcastEvent{BroadcastID: b.ID, UserID: u.UserID, Status: models.DeliveryBlocked})
		e.events.BroadcastFailed(ctx, b.BotID, b.ID, u.UserID, string(models.DeliveryBlocked))
	case deliverySent:
		b.Sent++
		_ = e.broadcasts.RecordDelivery(ctx, models.BroadcastEvent{BroadcastID: b.ID, UserID: u.UserID, Status: models.DeliverySent})
		e.events.BroadcastSent(ctx, b.BotID, b.ID, u.UserID)
	default:
		b.Failed++
		_ = e.broadcasts.RecordDelivery(ctx, models.BroadcastEvent{BroadcastID: b.ID, UserID: u.UserID, Status: models.DeliveryFailed})
		e.events.BroadcastFailed(ctx, b.BotID, b.ID, u.UserID, string(models.DeliveryFailed))
		e.logger.Warn("broadcast send exhausted retries", "bot_id", b.BotID, "broadcast_id", b.ID, "user_id", u.UserID, "attempts", attempts)
	}
}

type deliveryResult int

const (
	deliverySent deliveryResult = iota
	deliveryFailed
	deliveryBlocked
)

// sendWithRetry drives one recipient's send through up to maxSendAttempts
// tries with the 1s/4s/16s backoff schedule; a channels.ErrBlocked is
// non-retriable and short-circuits immediately.
func sendWithRetry(ctx context.Context, adapter channels.OutboundAdapter, chatID string, reply models.Reply) (deliveryResult, int) {
	result, err := backoff.RetryWithBackoff(ctx, retryPolicy, maxSendAttempts, func(_ int) (deliveryResult, error) {
		err := adapter.Send(ctx, chatID, reply)
		if err == nil {
			return deliverySent, nil
		}
		if channels.IsBlocked(err) {
			return deliveryBlocked, nil
		}
		return deliveryFailed, err
	})
	if err != nil {
		return deliveryFailed, result.Attempts
	}
	return result.Value, result.Attempts
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
