package handlers

import (
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"vtokiosk/internal/analytics"
	"vtokiosk/internal/backup"
	"vtokiosk/internal/catalog"
	"vtokiosk/internal/cost"
	"vtokiosk/internal/domain"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/promptcfg"
	"vtokiosk/internal/sse"
	"vtokiosk/internal/store"
	"vtokiosk/internal/wizard"
)

// maxBody bounds request bodies; captured frames arrive as data URIs.
const maxBody = 25 << 20

// App carries the dependencies of the HTTP handlers.
type App struct {
	Wizard   *wizard.Orchestrator
	Catalog  *catalog.Catalog
	History  *store.History
	Usage    *store.Usage
	Prompts  *promptcfg.Manager
	Backup   backup.Uploader
	Events   *sse.Hub
	Cost     *cost.Calculator
	Recorder analytics.Recorder
	Logger   *infra.Logger
}

func (a *App) log() *infra.Logger {
	if a.Logger == nil {
		return infra.NopLogger()
	}
	return a.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorResponse{Error: errorDetail{Code: kind, Message: message}})
}

// fail maps domain and store errors to HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrBusy):
		a.error(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, store.ErrQuotaExceeded):
		a.error(w, http.StatusInsufficientStorage, "quota_exceeded", "local storage is full")
	default:
		a.log().Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// decode reads a JSON body. An empty body leaves v untouched.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
		return false
	}
	a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
	return false
}
