package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors named in §6. It is the only
// metrics registration point in the runtime: components record against
// these collectors rather than declaring their own.
type Metrics struct {
	// BotUpdatesTotal counts inbound updates handled per bot.
	BotUpdatesTotal *prometheus.CounterVec

	// BotErrorsTotal counts errors by bot, component, and error code.
	BotErrorsTotal *prometheus.CounterVec

	// DSLHandleLatencyMs measures one full update-handle duration.
	DSLHandleLatencyMs prometheus.Histogram

	// WebhookLatencyMs measures the HTTP webhook handler's own latency.
	WebhookLatencyMs prometheus.Histogram

	// BotSQLQueryTotal and BotSQLExecTotal count gatekept SQL actions run per bot.
	BotSQLQueryTotal *prometheus.CounterVec
	BotSQLExecTotal  *prometheus.CounterVec

	// DSLActionLatencyMs measures action execution latency by action kind.
	DSLActionLatencyMs *prometheus.HistogramVec

	// LLMRequestsTotal counts LLM calls by type and status.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMLatencyMs measures LLM call latency by type and cache hit/miss.
	LLMLatencyMs *prometheus.HistogramVec

	// LLMTokensTotal counts tokens consumed by model and type (prompt|completion).
	LLMTokensTotal *prometheus.CounterVec

	// LLMCacheHitsTotal counts prompt-cache hits by model.
	LLMCacheHitsTotal *prometheus.CounterVec

	// LLMErrorsTotal counts LLM transport errors by model and error type.
	LLMErrorsTotal *prometheus.CounterVec

	// LLMTimeoutTotal counts LLM calls that exceeded their deadline, per bot.
	LLMTimeoutTotal *prometheus.CounterVec

	// CircuitBreakerStateChangesTotal counts breaker transitions per bot and target state.
	CircuitBreakerStateChangesTotal *prometheus.CounterVec

	// LLMCircuitBreakerRejectionsTotal counts calls rejected by an open breaker, per bot.
	LLMCircuitBreakerRejectionsTotal *prometheus.CounterVec

	// WidgetCalendarRendersTotal counts calendar widget renders per bot.
	WidgetCalendarRendersTotal *prometheus.CounterVec

	// WidgetCalendarPicksTotal counts calendar picks per bot and mode.
	WidgetCalendarPicksTotal *prometheus.CounterVec

	// BroadcastSentTotal and BroadcastFailedTotal count broadcast deliveries per bot.
	BroadcastSentTotal   *prometheus.CounterVec
	BroadcastFailedTotal *prometheus.CounterVec
}

// NewMetrics registers the runtime's Prometheus collectors against reg and
// returns them. Pass prometheus.DefaultRegisterer in production (once per
// process); tests should pass a fresh prometheus.NewRegistry() to avoid
// colliding on metric names across test cases.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BotUpdatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total inbound updates handled per bot.",
		}, []string{"bot_id"}),

		BotErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_errors_total",
			Help: "Total errors emitted per bot, component, and error code.",
		}, []string{"bot_id", "where", "code"}),

		DSLHandleLatencyMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dsl_handle_latency_ms",
			Help:    "Latency of a full update-handle pass, in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),

		WebhookLatencyMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "webhook_latency_ms",
			Help:    "Latency of the HTTP webhook handler, in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		BotSQLQueryTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_sql_query_total",
			Help: "Total sql_query actions executed per bot.",
		}, []string{"bot_id"}),

		BotSQLExecTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_sql_exec_total",
			Help: "Total sql_exec actions executed per bot.",
		}, []string{"bot_id"}),

		DSLActionLatencyMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dsl_action_latency_ms",
			Help:    "Latency of a single action's execution, in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"action"}),

		LLMRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total LLM requests by type and status.",
		}, []string{"type", "status"}),

		LLMLatencyMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_latency_ms",
			Help:    "LLM call latency, in milliseconds, excluding cache hits.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"type", "cached"}),

		LLMTokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total tokens consumed by model and type.",
		}, []string{"model", "type"}),

		LLMCacheHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_cache_hits_total",
			Help: "Total LLM prompt-cache hits by model.",
		}, []string{"model"}),

		LLMErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_errors_total",
			Help: "Total LLM errors by model and error type.",
		}, []string{"model", "error_type"}),

		LLMTimeoutTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_timeout_total",
			Help: "Total LLM calls that exceeded their deadline, per bot.",
		}, []string{"bot_id"}),

		CircuitBreakerStateChangesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Total breaker state transitions per bot and target state.",
		}, []string{"bot_id", "to"}),

		LLMCircuitBreakerRejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_circuit_breaker_rejections_total",
			Help: "Total LLM calls rejected by an open breaker, per bot.",
		}, []string{"bot_id"}),

		WidgetCalendarRendersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_calendar_renders_total",
			Help: "Total calendar widget renders per bot.",
		}, []string{"bot_id"}),

		WidgetCalendarPicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_calendar_picks_total",
			Help: "Total calendar picks per bot and mode.",
		}, []string{"bot_id", "mode"}),

		BroadcastSentTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_sent_total",
			Help: "Total broadcast messages sent per bot.",
		}, []string{"bot_id"}),

		BroadcastFailedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_failed_total",
			Help: "Total broadcast messages failed per bot.",
		}, []string{"bot_id"}),
	}
}
