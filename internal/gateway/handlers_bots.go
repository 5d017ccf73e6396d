package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tgdsl/runtime/internal/dsl"
	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/pkg/models"
)

// handleBotsCollection serves POST /bots (create) and GET /bots (list).
func (s *Server) handleBotsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBot(w, r)
	case http.MethodGet:
		s.listBots(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, models.ErrInternal, "method not allowed")
	}
}

func (s *Server) createBot(w http.ResponseWriter, r *http.Request) {
	var bot models.Bot
	if err := json.NewDecoder(r.Body).Decode(&bot); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInternal, "invalid request body")
		return
	}
	if bot.ID == "" {
		writeError(w, http.StatusBadRequest, models.ErrInternal, "id is required")
		return
	}
	if bot.Status == "" {
		bot.Status = models.BotStatusActive
	}
	if bot.DefaultLocale == "" {
		bot.DefaultLocale = "en"
	}
	now := time.Now().UTC()
	bot.CreatedAt, bot.UpdatedAt = now, now

	if err := s.deps.Bots.Create(r.Context(), &bot); err != nil {
		writeError(w, http.StatusInternalServerError, models.ErrInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

func (s *Server) listBots(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	bots, total, err := s.deps.Bots.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, models.ErrInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": bots, "total": total})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// handleBotsItem dispatches every /bots/{id}[/...] route.
func (s *Server) handleBotsItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/bots/")
	parts := strings.SplitN(rest, "/", 2)
	botID := parts[0]
	if botID == "" {
		writeError(w, http.StatusNotFound, models.ErrInternal, "bot id is required")
		return
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.getBot(w, r, botID)
	case sub == "" && r.Method == http.MethodPut:
		s.updateBot(w, r, botID)
	case sub == "" && r.Method == http.MethodDelete:
		s.deleteBot(w, r, botID)
	case sub == "spec" && r.Method == http.MethodGet:
		s.getSpec(w, r, botID)
	case sub == "spec" && r.Method == http.MethodPut:
		s.putSpec(w, r, botID)
	case sub == "reload" && r.Method == http.MethodPost:
		s.reloadBot(w, r, botID)
	case sub == "validate" && r.Method == http.MethodPost:
		s.validateSpec(w, r, botID)
	case sub == "data" && r.Method == http.MethodDelete:
		s.deleteBotData(w, r, botID)
	default:
		writeError(w, http.StatusNotFound, models.ErrInternal, "unknown route")
	}
}

func (s *Server) getBot(w http.ResponseWriter, r *http.Request, botID string) {
	bot, err := s.deps.Bots.Get(r.Context(), botID)
	if err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) updateBot(w http.ResponseWriter, r *http.Request, botID string) {
	var bot models.Bot
	if err := json.NewDecoder(r.Body).Decode(&bot); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInternal, "invalid request body")
		return
	}
	bot.ID = botID
	bot.UpdatedAt = time.Now().UTC()
	if err := s.deps.Bots.Update(r.Context(), &bot); err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) deleteBot(w http.ResponseWriter, r *http.Request, botID string) {
	if err := s.deps.Bots.Delete(r.Context(), botID); err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) getSpec(w http.ResponseWriter, r *http.Request, botID string) {
	spec, err := s.deps.SpecStore.Latest(r.Context(), botID)
	if err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) putSpec(w http.ResponseWriter, r *http.Request, botID string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInternal, "failed to read body")
		return
	}

	doc, err := dsl.ParseDoc(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInternal, err.Error())
		return
	}
	prev, err := s.deps.SpecStore.Latest(r.Context(), botID)
	version := 1
	if err == nil && prev != nil {
		version = prev.Version + 1
	}
	if _, err := dsl.Compile(botID, version, doc); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInternal, err.Error())
		return
	}

	spec := &models.Spec{BotID: botID, Version: version, SpecJSON: body, PublishedAt: time.Now().UTC().Unix()}
	if err := s.deps.SpecStore.Publish(r.Context(), spec); err != nil {
		writeError(w, http.StatusInternalServerError, models.ErrInternal, err.Error())
		return
	}
	if _, err := s.deps.Specs.Reload(r.Context(), botID); err != nil {
		writeError(w, http.StatusInternalServerError, models.ErrInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

// reloadBot recompiles botID's currently-published spec, idempotently (two
// sequential reloads at the same published version produce the same
// compiled form, per §8).
func (s *Server) reloadBot(w http.ResponseWriter, r *http.Request, botID string) {
	compiled, err := s.deps.Specs.Reload(r.Context(), botID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, models.ErrInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bot_id": botID, "version": compiled.Version})
}

// validateSpec parses and compiles the request body without publishing it,
// exercising the same dsl.Compile path the `botkerneld validate` CLI
// subcommand uses offline.
func (s *Server) validateSpec(w http.ResponseWriter, r *http.Request, botID string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInternal, "failed to read body")
		return
	}
	doc, err := dsl.ParseDoc(body)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	if _, err := dsl.Compile(botID, 0, doc); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// deleteBotData purges every per-tenant table that supports it, leaving the
// bot record and its published spec history intact (specs are immutable
// audit history, not user data).
func (s *Server) deleteBotData(w http.ResponseWriter, r *http.Request, botID string) {
	ctx := r.Context()
	for _, err := range []error{
		s.deps.I18n.DeleteBot(ctx, botID),
		s.deps.Broadcasts.DeleteBot(ctx, botID),
		s.deps.Bookings.DeleteBot(ctx, botID),
		s.deps.Events.DeleteBot(ctx, botID),
	} {
		if err != nil {
			writeError(w, http.StatusInternalServerError, models.ErrInternal, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func writeNotFoundOr500(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, models.ErrInternal, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, models.ErrInternal, err.Error())
}
