package assistant

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/HerbHall/aquabot/pkg/roles"
	"go.uber.org/zap"
)

// storageApology is the user-facing answer when telemetry cannot be read.
const storageApology = "Desculpe, não consegui acessar os dados de telemetria agora. Tente novamente em instantes."

// SessionMessagesResponse is returned by GET /assistant/sessions/{session_id}/messages.
type SessionMessagesResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

func (m *Module) handleChat(w http.ResponseWriter, r *http.Request) {
	var req roles.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := m.Ask(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingIdentifiers):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, roles.ErrStorageUnavailable):
			m.logger.Error("telemetry storage unavailable", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, storageApology)
		case errors.Is(err, ErrClassifierUnavailable):
			m.logger.Error("intent classification failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "intent classifier unavailable")
		default:
			m.logger.Error("chat request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (m *Module) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	resp := SessionMessagesResponse{SessionID: sessionID, Messages: []Message{}}
	if m.history != nil {
		msgs, err := m.history.List(r.Context(), sessionID, 0)
		if err != nil {
			m.logger.Error("list session messages", zap.String("session_id", sessionID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list messages")
			return
		}
		if msgs != nil {
			resp.Messages = msgs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://aquabot.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
