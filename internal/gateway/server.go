// Package gateway is the runtime's one HTTP front door (C15): a bare
// http.ServeMux exposing the webhook ingest route, the control-plane bot
// CRUD routes, health checks and Prometheus metrics. It owns nothing
// business-logic-shaped itself — every route delegates straight into the
// core components it is handed at construction.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tgdsl/runtime/internal/channels"
	"github.com/tgdsl/runtime/internal/channels/telegram"
	"github.com/tgdsl/runtime/internal/dsl"
	"github.com/tgdsl/runtime/internal/interpreter"
	"github.com/tgdsl/runtime/internal/storage"
)

// Deps bundles the core components the gateway routes dispatch into. All
// fields are required except DB, which is nil for an in-memory StoreSet
// (the /health/pg and /health/db routes report unhealthy in that case), and
// Telegram, which is nil when no bot token is configured (webhook replies
// are then not sent).
type Deps struct {
	Bots        storage.BotStore
	SpecStore   storage.SpecStore
	Specs       *dsl.Cache
	I18n        storage.I18nStore
	Broadcasts  storage.BroadcastStore
	Bookings    storage.BookingStore
	Events      storage.EventStore
	Interpreter *interpreter.Interpreter
	Telegram    *telegram.Adapter
	Channels    *channels.Registry
	DB          *sql.DB
	LLMEnabled  bool
	Logger      *slog.Logger
}

// Server owns the http.Server and its listener for the lifetime of one
// `serve` invocation.
type Server struct {
	deps     Deps
	logger   *slog.Logger
	mux      *http.ServeMux
	httpSrv  *http.Server
	listener net.Listener
}

// New builds the routed mux; it does not bind a socket until Start.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, logger: deps.Logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/health/pg", s.handleHealthPG)
	s.mux.HandleFunc("/health/db", s.handleHealthPG)
	s.mux.HandleFunc("/health/redis", s.handleHealthRedis)
	s.mux.HandleFunc("/health/llm", s.handleHealthLLM)

	s.mux.HandleFunc("/tg/", s.handleTelegramWebhook)
	s.mux.HandleFunc("/preview/send", s.handlePreviewSend)

	s.mux.HandleFunc("/bots", s.handleBotsCollection)
	s.mux.HandleFunc("/bots/", s.handleBotsItem)
}

// Start binds addr and serves in a background goroutine, matching the
// teacher's listen-then-goroutine-Serve split so Stop always has a live
// listener to close even if Serve itself is slow to notice cancellation.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway: serve error", "error", err)
		}
	}()

	s.logger.Info("gateway: listening", "addr", addr)
	return nil
}

// Stop gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Stop(ctx context.Context) {
	if s.httpSrv == nil {
		return
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("gateway: shutdown error", "error", err)
	}
}

// Handler exposes the routed mux directly, for tests that drive the server
// with httptest.NewServer/NewRecorder without binding a real socket.
func (s *Server) Handler() http.Handler { return s.mux }
