package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/tgdsl/runtime/internal/channels/telegram"
	"github.com/tgdsl/runtime/pkg/models"
)

// handleTelegramWebhook ingests one Telegram update for the bot named in
// the path. Per §6 the response is always 200 — any failure below is
// internalised (logged, counted) rather than surfaced to the Telegram side,
// since Telegram retries a non-2xx delivery and the runtime's own error
// events already record the failure.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}
	botID := strings.TrimPrefix(r.URL.Path, "/tg/")
	botID = strings.Trim(botID, "/")
	if botID == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var raw tgmodels.Update
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.logger.Warn("gateway: webhook decode failed", "bot_id", botID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	upd, err := telegram.DecodeUpdate(botID, &raw)
	if err != nil {
		s.logger.Warn("gateway: webhook update has no text/callback", "bot_id", botID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	reply, err := s.deps.Interpreter.Handle(r.Context(), upd)
	if err != nil {
		s.logger.Error("gateway: interpreter error", "bot_id", botID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	s.deliver(r.Context(), upd, reply)
	w.WriteHeader(http.StatusOK)
}

// deliver sends a non-nil, non-empty reply back over the Telegram adapter.
// A silent no-match (reply == nil) sends nothing, matching §4.5.
func (s *Server) deliver(ctx context.Context, upd models.Update, reply *models.Reply) {
	if reply == nil || reply.Text == "" || s.deps.Telegram == nil {
		return
	}
	if err := s.deps.Telegram.Send(ctx, upd.ChatID, *reply); err != nil {
		s.logger.Warn("gateway: reply send failed", "chat_id", upd.ChatID, "error", err)
	}
}
