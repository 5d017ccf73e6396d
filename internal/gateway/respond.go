package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/tgdsl/runtime/internal/events"
	"github.com/tgdsl/runtime/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the §6 error envelope: {error: {code, message, trace_id}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id"`
}

func writeError(w http.ResponseWriter, status int, code models.ErrorCode, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(code),
		Message: message,
		TraceID: events.NewTraceID(),
	}})
}
