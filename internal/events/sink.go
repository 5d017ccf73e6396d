// Package events is the Event & Metrics Sink (C9): every core component
// writes exactly one append-only event per operation here, sharing a
// trace_id across the handling of a single inbound update, and the same
// code path updates the Prometheus collectors in Metrics.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/pkg/models"
)

// Sink writes events to the append-only store and updates metrics in the
// same call, per §4.9.
type Sink struct {
	store             storage.EventStore
	metrics           *Metrics
	logger            *slog.Logger
	maskSensitiveData bool
}

func New(store storage.EventStore, metrics *Metrics, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, metrics: metrics, logger: logger}
}

// SetMaskSensitiveData toggles whether free-text event fields that can
// carry wrapped driver/provider error text (and so, transitively, a bind
// value or user-supplied token) are replaced with models.Masked before
// they reach the event log. Configured from Observability.MaskSensitiveData
// / MASK_SENSITIVE_DATA (§3: event data never carries raw SQL or user
// tokens).
func (s *Sink) SetMaskSensitiveData(enabled bool) {
	s.maskSensitiveData = enabled
}

// NewTraceID returns a fresh correlation id for one inbound update.
func NewTraceID() string {
	return uuid.NewString()
}

// Emit writes ev to the event log. Failures to persist are logged but never
// propagated: the event sink must not be able to fail the handler whose
// operation it is recording.
func (s *Sink) Emit(ctx context.Context, ev models.Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	if s.store != nil {
		if err := s.store.Insert(ctx, ev); err != nil {
			s.logger.ErrorContext(ctx, "event insert failed", "type", ev.Type, "bot_id", ev.BotID, "err", err)
		}
	}
}

// Update records the `update` event for an inbound message and bumps
// bot_updates_total.
func (s *Sink) Update(ctx context.Context, botID, userID, traceID string, matched bool) {
	s.metrics.BotUpdatesTotal.WithLabelValues(botID).Inc()
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventUpdate, TraceID: traceID,
		Data: map[string]any{"matched": matched},
	})
}

// FlowStep records a wizard step transition.
func (s *Sink) FlowStep(ctx context.Context, botID, userID, traceID, flowCmd string, step int, advanced bool) {
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventFlowStep, TraceID: traceID,
		Data: map[string]any{"flow_cmd": flowCmd, "step": step, "advanced": advanced},
	})
}

// ActionSQL records a sql_exec/sql_query action. sql is never recorded
// directly — only its gatekeeper hash.
func (s *Sink) ActionSQL(ctx context.Context, botID, userID, traceID, mode string, hash uint64, success bool, rowsAffected int64, d time.Duration) {
	if mode == "exec" {
		s.metrics.BotSQLExecTotal.WithLabelValues(botID).Inc()
	} else {
		s.metrics.BotSQLQueryTotal.WithLabelValues(botID).Inc()
	}
	s.metrics.DSLActionLatencyMs.WithLabelValues("sql_"+mode).Observe(float64(d.Milliseconds()))
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventActionSQL, TraceID: traceID,
		Data: map[string]any{"mode": mode, "sql_hash": hash, "success": success, "rows_affected": rowsAffected},
	})
}

// ActionReply records a reply_template action, including the rendered
// output's length (never the rendered text itself, which may carry
// user-supplied values).
func (s *Sink) ActionReply(ctx context.Context, botID, userID, traceID string, success bool, outputLen int, d time.Duration) {
	s.metrics.DSLActionLatencyMs.WithLabelValues("reply_template").Observe(float64(d.Milliseconds()))
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventActionReply, TraceID: traceID,
		Data: map[string]any{"success": success, "output_len": outputLen},
	})
}

// Error records an error event and bumps bot_errors_total{where,code}.
// detail is typically err.Error() from a driver or provider call, which can
// echo a bind value or other user-supplied content back verbatim (e.g. a
// unique-constraint violation message) -- so it is masked whenever
// MaskSensitiveData is enabled.
func (s *Sink) Error(ctx context.Context, botID, userID, traceID, where string, code models.ErrorCode, detail string) {
	s.metrics.BotErrorsTotal.WithLabelValues(botID, where, string(code)).Inc()
	if s.maskSensitiveData {
		detail = Mask(detail)
	}
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventError, TraceID: traceID,
		Data: map[string]any{"where": where, "code": string(code), "detail": detail},
	})
}

// WidgetRender records a calendar widget render.
func (s *Sink) WidgetRender(ctx context.Context, botID, userID, traceID, mode string) {
	s.metrics.WidgetCalendarRendersTotal.WithLabelValues(botID).Inc()
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventWidgetRender, TraceID: traceID,
		Data: map[string]any{"mode": mode},
	})
}

// WidgetPick records a terminal calendar pick.
func (s *Sink) WidgetPick(ctx context.Context, botID, userID, traceID, mode, value string) {
	s.metrics.WidgetCalendarPicksTotal.WithLabelValues(botID, mode).Inc()
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventWidgetPick, TraceID: traceID,
		Data: map[string]any{"mode": mode, "value": value},
	})
}

// LLMRequest records one LLM call through the circuit breaker.
func (s *Sink) LLMRequest(ctx context.Context, botID, userID, traceID, reqType, status string, cached bool, d time.Duration, tokens int, model string) {
	s.metrics.LLMRequestsTotal.WithLabelValues(reqType, status).Inc()
	cachedLabel := "false"
	if cached {
		cachedLabel = "true"
		s.metrics.LLMCacheHitsTotal.WithLabelValues(model).Inc()
	} else {
		s.metrics.LLMLatencyMs.WithLabelValues(reqType, cachedLabel).Observe(float64(d.Milliseconds()))
	}
	if tokens > 0 {
		s.metrics.LLMTokensTotal.WithLabelValues(model, reqType).Add(float64(tokens))
	}
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventLLMRequest, TraceID: traceID,
		Data: map[string]any{"type": reqType, "status": status, "cached": cached, "model": model, "tokens": tokens},
	})
}

// LLMTimeout records a deadline-exceeded LLM call.
func (s *Sink) LLMTimeout(ctx context.Context, botID string) {
	s.metrics.LLMTimeoutTotal.WithLabelValues(botID).Inc()
}

// LLMError records an LLM transport error.
func (s *Sink) LLMError(ctx context.Context, model, errType string) {
	s.metrics.LLMErrorsTotal.WithLabelValues(model, errType).Inc()
}

// LLMBreaker records a circuit breaker state change or rejection.
func (s *Sink) LLMBreaker(ctx context.Context, botID, traceID, event, toState string) {
	if toState != "" {
		s.metrics.CircuitBreakerStateChangesTotal.WithLabelValues(botID, toState).Inc()
	}
	if event == "rejected" {
		s.metrics.LLMCircuitBreakerRejectionsTotal.WithLabelValues(botID).Inc()
	}
	s.Emit(ctx, models.Event{
		BotID: botID, Type: models.EventLLMBreaker, TraceID: traceID,
		Data: map[string]any{"event": event, "to": toState},
	})
}

// BroadcastSent records a single successful broadcast delivery.
func (s *Sink) BroadcastSent(ctx context.Context, botID, broadcastID, userID string) {
	s.metrics.BroadcastSentTotal.WithLabelValues(botID).Inc()
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventBroadcastSent,
		Data: map[string]any{"broadcast_id": broadcastID},
	})
}

// BroadcastFailed records a single failed or blocked broadcast delivery.
func (s *Sink) BroadcastFailed(ctx context.Context, botID, broadcastID, userID, status string) {
	s.metrics.BroadcastFailedTotal.WithLabelValues(botID).Inc()
	s.Emit(ctx, models.Event{
		BotID: botID, UserID: userID, Type: models.EventBroadcastSent,
		Data: map[string]any{"broadcast_id": broadcastID, "status": status},
	})
}

// BroadcastDone records the terminal state of a broadcast job.
func (s *Sink) BroadcastDone(ctx context.Context, botID, broadcastID, status string, sent, failed, blocked int) {
	s.Emit(ctx, models.Event{
		BotID: botID, Type: models.EventBroadcastDone,
		Data: map[string]any{"broadcast_id": broadcastID, "status": status, "sent": sent, "failed": failed, "blocked": blocked},
	})
}

// Mask replaces a sensitive value (a bind parameter, a user-supplied
// token) with the stable masked literal before it reaches an event. The DSL
// never logs raw SQL text or user tokens (§3) — SQL is recorded only by its
// gatekeeper hash, and any echoed bind value goes through Mask first.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	return models.Masked
}
