package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/tgdsl/runtime/pkg/models"
)

type previewRequest struct {
	BotID  string `json:"bot_id"`
	Text   string `json:"text"`
	UserID string `json:"user_id,omitempty"`
}

// handlePreviewSend is the synchronous single-update tester: it runs one
// plain-text update through the same interpreter path a webhook delivery
// would, without touching a real Telegram chat.
func (s *Server) handlePreviewSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, models.ErrInternal, "method not allowed")
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInternal, "invalid request body")
		return
	}
	if req.BotID == "" {
		writeError(w, http.StatusBadRequest, models.ErrInternal, "bot_id is required")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = "preview"
	}

	reply, err := s.deps.Interpreter.Handle(r.Context(), models.Update{
		BotID: req.BotID, UserID: userID, ChatID: userID, Text: req.Text,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, models.ErrInternal, err.Error())
		return
	}
	if reply == nil {
		writeJSON(w, http.StatusOK, models.Reply{})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
