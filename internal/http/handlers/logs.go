package handlers

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type clientLogRequest struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context"`
}

// maxClientMessage truncates browser messages before they reach the log.
const maxClientMessage = 2000

// ClientLog records a browser-side log line.
func (a *App) ClientLog(w http.ResponseWriter, r *http.Request) {
	var req clientLogRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}
	if len(req.Message) > maxClientMessage {
		req.Message = req.Message[:maxClientMessage]
	}
	level, err := zerolog.ParseLevel(strings.ToLower(req.Level))
	if err != nil || level == zerolog.NoLevel || level < zerolog.DebugLevel || level > zerolog.ErrorLevel {
		level = zerolog.InfoLevel
	}
	ev := a.log().WithLevel(level).Str("source", "browser")
	if req.SessionID != "" {
		ev = ev.Str("session_id", req.SessionID)
	}
	if len(req.Context) > 0 {
		ev = ev.Interface("context", req.Context)
	}
	ev.Msg(req.Message)
	w.WriteHeader(http.StatusNoContent)
}
